package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"sidequest/internal/domain"
	"sidequest/internal/logger"
	"sidequest/internal/repo"
)

// Directory resolves the ids carried by events into recipients and content.
// repo.Repo implements it.
type Directory interface {
	GetAdventurer(ctx context.Context, id string) (domain.Adventurer, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	UserRecap(ctx context.Context, userID, start, end string) (domain.Recap, error)
}

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of an SMTP relay.
type LogMailer struct {
	Log *logger.Logger
}

func (m LogMailer) Send(_ context.Context, msg Message) error {
	m.Log.Info("email", "from", msg.From, "to", msg.To, "subject", msg.Subject, "body", msg.HTML)
	return nil
}

// MailSink renders level-up and daily-recap emails.
type MailSink struct {
	Directory Directory
	Mailer    Mailer
	From      string
}

var (
	levelUpTmpl = template.Must(template.New("level_up").Parse(`<html><body>
<h2>Level up!</h2>
<p>Hi {{.Username}},</p>
<p>{{.Adventurer}} advanced from level {{.OldLevel}} to level {{.NewLevel}}.</p>
{{- if .Milestone}}
<p>Level {{.NewLevel}} is a milestone. Harder quests are waiting.</p>
{{- end}}
<p>Keep questing!</p>
</body></html>`))

	recapTmpl = template.Must(template.New("daily_recap").Parse(`<html><body>
<h2>Daily recap for {{.Date}}</h2>
<p>Hi {{.Recap.Username}}, here is what your adventurers did.</p>
{{- range .Recap.Adventurers}}
<h3>{{.AdventurerName}} (level {{.Level}})</h3>
<ul>
{{- range .QuestTitles}}
<li>{{.}}</li>
{{- end}}
</ul>
<p>{{.QuestCount}} quests, {{.ExperienceGain}} XP</p>
{{- end}}
<p><strong>Total: {{.Recap.TotalQuests}} quests, {{.Recap.TotalXP}} XP</strong></p>
</body></html>`))
)

func (s MailSink) Deliver(ctx context.Context, evt Event) error {
	if s.Directory == nil || s.Mailer == nil {
		return fmt.Errorf("mail sink not initialized")
	}
	switch e := evt.(type) {
	case LevelUp:
		return s.levelUp(ctx, e)
	case DailyRecap:
		return s.dailyRecap(ctx, e)
	default:
		return nil
	}
}

func (s MailSink) levelUp(ctx context.Context, e LevelUp) error {
	adv, err := s.Directory.GetAdventurer(ctx, e.AdventurerID)
	if err != nil {
		return fmt.Errorf("load adventurer %s: %w", e.AdventurerID, err)
	}
	user, err := s.Directory.GetUser(ctx, adv.OwnerUserID)
	if err != nil {
		return fmt.Errorf("load owner %s: %w", adv.OwnerUserID, err)
	}
	var buf bytes.Buffer
	err = levelUpTmpl.Execute(&buf, map[string]any{
		"Username":   user.Username,
		"Adventurer": adv.Name,
		"OldLevel":   e.OldLevel,
		"NewLevel":   e.NewLevel,
		"Milestone":  e.Milestone(),
	})
	if err != nil {
		return err
	}
	return s.Mailer.Send(ctx, Message{
		From:    s.From,
		To:      user.Email,
		Subject: fmt.Sprintf("%s reached level %d!", adv.Name, e.NewLevel),
		HTML:    buf.String(),
	})
}

func (s MailSink) dailyRecap(ctx context.Context, e DailyRecap) error {
	recap, err := s.Directory.UserRecap(ctx, e.UserID, e.PeriodStart.UTC().Format(time.RFC3339), e.PeriodEnd.UTC().Format(time.RFC3339))
	if errors.Is(err, repo.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load recap for %s: %w", e.UserID, err)
	}
	date := e.PeriodStart.UTC().Format("January 2, 2006")
	var buf bytes.Buffer
	if err := recapTmpl.Execute(&buf, map[string]any{"Date": date, "Recap": recap}); err != nil {
		return err
	}
	return s.Mailer.Send(ctx, Message{
		From:    s.From,
		To:      recap.Email,
		Subject: "Your Side Quest daily recap for " + date,
		HTML:    buf.String(),
	})
}
