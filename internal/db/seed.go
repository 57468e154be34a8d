package database

import (
	"log"

	"symbiosing/internal/instruction"
	"symbiosing/internal/models"
	"symbiosing/internal/sequence"
	"symbiosing/internal/timecode"
)

// SeedExample stores a short two-part demo and assigns its role to device 0
// when the database holds no sets yet.
func SeedExample(c *Client) {
	var count int64
	c.DB.Model(&models.InstructionSet{}).Count(&count)
	if count > 0 {
		return
	}

	breathe := instruction.New("wearer")
	for _, step := range []struct {
		at     timecode.Time
		action instruction.Action
		pwm    int
	}{
		{0, instruction.Inflate, 150},
		{1500, instruction.Release, 0},
		{3000, instruction.Stop, 0},
	} {
		i := breathe.Len()
		breathe.AppendInstant()
		breathe.Retime(i, step.at)
		breathe.SetAction("wearer", i, step.action)
		breathe.SetPWM("wearer", i, step.pwm)
		if step.action != instruction.Stop {
			breathe.SetPort("wearer", i, 0, true)
			breathe.SetPort("wearer", i, 1, true)
		}
	}

	pulse := instruction.New("wearer")
	for i := 0; i < 4; i++ {
		pulse.AppendInstant()
		pulse.Retime(i, timecode.Millis(float64(i*250)))
		action := instruction.Inflate
		if i%2 == 1 {
			action = instruction.Vacuum
		}
		pulse.SetAction("wearer", i, action)
		pulse.SetPWM("wearer", i, 200)
		pulse.SetPort("wearer", i, 2, true)
	}

	for name, set := range map[string]*instruction.Set{"breathe": breathe, "pulse": pulse} {
		if err := c.SaveSet(name, set); err != nil {
			log.Printf("⚠️ Seed %s failed: %v", name, err)
			return
		}
	}
	if err := c.SaveSequence([]string{"breathe", "pulse"}); err != nil {
		log.Printf("⚠️ Seed sequence failed: %v", err)
		return
	}
	if err := c.SaveAssignment(sequence.Assignment{"wearer": {0}}); err != nil {
		log.Printf("⚠️ Seed assignment failed: %v", err)
		return
	}
	log.Println("✅ Seeded example schedules")
}
