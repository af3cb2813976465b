package checkout

// Step is one stage of the checkout flow.
type Step string

const (
	StepItems     Step = "items"
	StepGuestInfo Step = "guest-info"
	StepPayment   Step = "payment"
	StepReview    Step = "review"
)

// Steps lists every step in flow order.
var Steps = []Step{StepItems, StepGuestInfo, StepPayment, StepReview}

func (s Step) Valid() bool {
	return s.index() >= 0
}

func (s Step) index() int {
	for i, step := range Steps {
		if step == s {
			return i
		}
	}
	return -1
}

// active reports whether step is part of the flow for the given inputs.
// Members skip guest info; free orders skip payment.
func active(step Step, isMember, free bool) bool {
	switch step {
	case StepGuestInfo:
		return !isMember
	case StepPayment:
		return !free
	default:
		return step.Valid()
	}
}

// ActiveSteps returns the steps a visitor walks through, in order.
func ActiveSteps(isMember, free bool) []Step {
	steps := make([]Step, 0, len(Steps))
	for _, step := range Steps {
		if active(step, isMember, free) {
			steps = append(steps, step)
		}
	}
	return steps
}

// Transition is the neighbourhood of a step under fixed inputs. Next or Prev
// is empty at either end of the flow.
type Transition struct {
	Next Step
	Prev Step
}

type transitionKey struct {
	step     Step
	isMember bool
	free     bool
}

var transitions = map[transitionKey]Transition{}

// Every (step, isMember, free) combination is resolved once. A step that is
// inactive under the inputs moves to the nearest active step on either side,
// so a visitor left on a step that stopped applying can always leave it.
func init() {
	for _, isMember := range []bool{false, true} {
		for _, free := range []bool{false, true} {
			for i, step := range Steps {
				var t Transition
				for j := i + 1; j < len(Steps); j++ {
					if active(Steps[j], isMember, free) {
						t.Next = Steps[j]
						break
					}
				}
				for j := i - 1; j >= 0; j-- {
					if active(Steps[j], isMember, free) {
						t.Prev = Steps[j]
						break
					}
				}
				transitions[transitionKey{step, isMember, free}] = t
			}
		}
	}
}

// Lookup returns the transition for step under the given inputs.
func Lookup(step Step, isMember, free bool) (Transition, bool) {
	t, ok := transitions[transitionKey{step, isMember, free}]
	return t, ok
}
