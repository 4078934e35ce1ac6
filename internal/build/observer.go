// SPDX-License-Identifier: MPL-2.0

package build

import "time"

type (
	// Clock supplies the current time.
	Clock interface {
		Now() time.Time
	}

	// Observer is told about step progress, typically to print status lines.
	Observer interface {
		StepStarted(step Step, detail string)
		StepFinished(step Step, report *StepReport)
	}

	systemClock struct{}

	nopObserver struct{}
)

func (systemClock) Now() time.Time { return time.Now() }

func (nopObserver) StepStarted(Step, string) {}
func (nopObserver) StepFinished(Step, *StepReport) {}
