// Package dispatch fans delivered broadcasts out to the storage, notification and audio sinks.
package dispatch

import (
	"time"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/classify"
	"github.com/linnemanlabs/cbwatch/internal/policy"
	"github.com/linnemanlabs/cbwatch/internal/prefs"
)

// Presentation is how prominently a notification is shown.
type Presentation int

const (
	PresentationPassive Presentation = iota
	PresentationFullScreen
)

func (p Presentation) String() string {
	if p == PresentationFullScreen {
		return "full_screen"
	}
	return "passive"
}

// MarshalText implements encoding.TextMarshaler.
func (p Presentation) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Notification is the user visible form of a message. ID is assigned by the
// Sequence when the notification is first posted.
type Notification struct {
	ID           int64        `json:"id"`
	Title        string       `json:"title"`
	TitleKey     string       `json:"title_key"`
	Body         string       `json:"body"`
	Presentation Presentation `json:"presentation"`
	MessageID    string       `json:"message_id"`
	DeliveryTime time.Time    `json:"delivery_time"`
}

// Audio is a request to sound an alert tone and optionally speak the body.
// Body and Language are empty when speech is disabled.
type Audio struct {
	Body     string
	Language string
	Duration time.Duration
}

// Plan lists the sink calls a message results in.
type Plan struct {
	Deliver      bool
	Notification Notification
	Audio        *Audio
}

const (
	languageJapanese = "ja"
	languageEnglish  = "en"
)

// BuildPlan computes the sink calls for msg without performing any of them.
func BuildPlan(msg *broadcast.Message, cl classify.Classification, d policy.Decision, snap prefs.Snapshot) Plan {
	if !d.Deliver {
		return Plan{}
	}

	urgent := d.TreatAsEmergency || cl.IsOperatorDefinedEmergency
	p := Plan{
		Deliver: true,
		Notification: Notification{
			Title:        cl.Title(),
			TitleKey:     cl.TitleKey(),
			Body:         msg.Body,
			MessageID:    msg.ID,
			DeliveryTime: msg.DeliveryTime,
		},
	}
	if !urgent {
		return p
	}

	p.Notification.Presentation = PresentationFullScreen
	audio := &Audio{Duration: time.Duration(snap.Int(prefs.KeyAlertSoundDuration)) * time.Second}
	if snap.Bool(prefs.KeyEnableAlertSpeech) {
		audio.Body = msg.Body
		audio.Language = speechLanguage(msg.Language, cl)
	}
	p.Audio = audio
	return p
}

// speechLanguage forces japanese for ETWS and english for CMAS, whatever the message declares.
func speechLanguage(lang string, cl classify.Classification) string {
	switch {
	case cl.IsEtws && lang != languageJapanese:
		return languageJapanese
	case cl.IsCmas && lang != languageEnglish:
		return languageEnglish
	default:
		return lang
	}
}
