package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xaenox/moodmate/internal/models"
)

const (
	MorningJobID   = "morning-6am"
	AfternoonJobID = "afternoon-1pm"
	NightJobID     = "night-9pm"

	MorningMessage   = "Good morning! 😄 Here's a fun message to start your day! Don't forget water 💧"
	AfternoonMessage = "Hi! 🍱 Did you have lunch? How are you feeling right now?"
	NightMessage     = "Good night 🌙 How was your day today? Want to jot it down?"
)

// Job is a daily notification at Hour:Minute in the scheduler's time zone.
type Job struct {
	ID      string
	Hour    int
	Minute  int
	Channel models.Channel
	Message string
}

// DefaultJobs are registered by Start unless a job with the same ID is
// already registered.
func DefaultJobs() []Job {
	return []Job{
		{ID: MorningJobID, Hour: 6, Minute: 0, Channel: models.ChannelMorning, Message: MorningMessage},
		{ID: AfternoonJobID, Hour: 13, Minute: 0, Channel: models.ChannelAfternoon, Message: AfternoonMessage},
		{ID: NightJobID, Hour: 21, Minute: 0, Channel: models.ChannelNight, Message: NightMessage},
	}
}

func (j Job) validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return errors.New("job id required")
	}
	if j.Hour < 0 || j.Hour > 23 {
		return fmt.Errorf("job %s: invalid hour %d", j.ID, j.Hour)
	}
	if j.Minute < 0 || j.Minute > 59 {
		return fmt.Errorf("job %s: invalid minute %d", j.ID, j.Minute)
	}
	if _, err := models.ParseChannel(string(j.Channel)); err != nil {
		return fmt.Errorf("job %s: %w", j.ID, err)
	}
	return nil
}

// spec pins the zone into the cron expression so the entry fires on the wall
// clock of loc whatever the host zone is.
func (j Job) spec(loc *time.Location) string {
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", loc.String(), j.Minute, j.Hour)
}

// ParseDaily builds a Job from its config form, e.g. at "17:30".
func ParseDaily(id, at, channel, message string) (Job, error) {
	h, m, err := parseHHMM(at)
	if err != nil {
		return Job{}, err
	}
	ch := models.ChannelCustom
	if strings.TrimSpace(channel) != "" {
		if ch, err = models.ParseChannel(channel); err != nil {
			return Job{}, err
		}
	}
	j := Job{ID: strings.TrimSpace(id), Hour: h, Minute: m, Channel: ch, Message: message}
	return j, j.validate()
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
