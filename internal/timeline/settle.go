package timeline

import (
	"symbiosing/internal/instruction"
	"symbiosing/internal/score"
)

// settleAction folds the intents of one instant. NoChange is absorbed by any
// concrete intent and equal intents agree. ok is false when two different
// concrete intents meet; first and second then name the disagreeing indexes.
func settleAction(intents []score.Intent) (settled score.Intent, first, second int, ok bool) {
	first = -1
	for i, in := range intents {
		if in == score.NoChange {
			continue
		}
		if first < 0 {
			settled, first = in, i
			continue
		}
		if in != settled {
			return settled, first, i, false
		}
	}
	return settled, first, -1, true
}

// settleIntensity is the loudest dynamic present. Silence for no input.
func settleIntensity(levels []score.Dynamic) score.Dynamic {
	loudest := score.Silence
	for _, d := range levels {
		loudest = score.Louder(loudest, d)
	}
	return loudest
}

// settlePorts opens the port of every channel whose intent matches the
// settled one. Stop and NoChange never open anything.
func settlePorts(ports []int, intents []score.Intent, settled score.Intent) instruction.Ports {
	var out instruction.Ports
	if settled == score.NoChange || settled == score.WantStop {
		return out
	}
	for i, in := range intents {
		if in == settled {
			out[ports[i]] = true
		}
	}
	return out
}
