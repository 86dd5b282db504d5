package reminders

import (
	"testing"

	"github.com/dmarin-v/slotbook/services/booking-engine/internal/model"
)

func TestDecide_KindDisabledSuppresses(t *testing.T) {
	prefs := model.DefaultPreferences()
	prefs.DayBeforeEnabled = false

	out := Decide(model.ReminderDayBefore, prefs)
	if !out.Suppress {
		t.Fatalf("disabled kind should suppress")
	}
	if out.SendEmail || out.InApp || out.Drop {
		t.Fatalf("suppression should not dispatch or drop: %+v", out)
	}
}

func TestDecide_BothChannels(t *testing.T) {
	out := Decide(model.ReminderHoursBefore, model.DefaultPreferences())
	if out.Suppress || out.Drop {
		t.Fatalf("default prefs should deliver: %+v", out)
	}
	if !out.SendEmail || !out.InApp {
		t.Fatalf("default prefs enable both channels: %+v", out)
	}
}

func TestDecide_InAppDisabledDropsRow(t *testing.T) {
	prefs := model.DefaultPreferences()
	prefs.InAppEnabled = false

	out := Decide(model.ReminderHoursBefore, prefs)
	if !out.Drop {
		t.Fatalf("in-app disabled should drop the task row")
	}
	if !out.SendEmail {
		t.Fatalf("email should still go out")
	}
	if out.InApp {
		t.Fatalf("no inbox record when in-app is disabled")
	}
}

func TestDecide_EmailDisabled(t *testing.T) {
	prefs := model.DefaultPreferences()
	prefs.EmailEnabled = false

	out := Decide(model.ReminderDayBefore, prefs)
	if out.SendEmail {
		t.Fatalf("email disabled should not dispatch email")
	}
	if !out.InApp || out.Drop {
		t.Fatalf("in-app delivery should proceed: %+v", out)
	}
}

func TestDecide_GenericKindDefaultsOn(t *testing.T) {
	prefs := model.DefaultPreferences()
	prefs.DayBeforeEnabled = false
	prefs.HoursBeforeEnabled = false

	out := Decide(model.ReminderGeneric, prefs)
	if out.Suppress {
		t.Fatalf("generic kind has no toggle and defaults to enabled")
	}
}
