package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"parkspot/internal/db"
	"parkspot/internal/entities"
)

type ContactFinder interface {
	GetContact(ctx context.Context, customerID uuid.UUID) (*db.CustomerContact, error)
}

type EmailSender interface {
	SendEmail(toEmail, toName, subject, plainText, html string) error
}

type SMSSender interface {
	SendSMS(to, body string) error
}

type SendGridSender struct {
	APIKey    string
	FromEmail string
	FromName  string
}

func (s SendGridSender) SendEmail(toEmail, toName, subject, plainText, html string) error {
	if s.APIKey == "" || s.FromEmail == "" {
		return fmt.Errorf("sendgrid is not configured")
	}
	message := mail.NewSingleEmail(mail.NewEmail(s.FromName, s.FromEmail), subject, mail.NewEmail(toName, toEmail), plainText, html)
	response, err := sendgrid.NewSendClient(s.APIKey).Send(message)
	if err != nil {
		return fmt.Errorf("sendgrid send to %s: %w", toEmail, err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

type TwilioSender struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

func (s TwilioSender) SendSMS(to, body string) error {
	if s.AccountSID == "" || s.AuthToken == "" || s.FromNumber == "" {
		return fmt.Errorf("twilio is not configured")
	}
	if !strings.HasPrefix(to, "+") {
		log.Printf("notify: destination %q is not E.164, SMS may fail", to)
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   s.AccountSID,
		Password:   s.AuthToken,
		AccountSid: s.AccountSID,
	})
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.FromNumber)
	params.SetBody(body)

	if _, err := client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send to %s: %w", to, err)
	}
	return nil
}

var reservationEmailTmpl = template.Must(template.New("reservation_email").Parse(
	`<p>{{.Greeting}} {{.UserName}},</p>
<p>{{.Headline}}</p>
<ul>
<li>{{.ReservationCode}}</li>
<li>{{.StartTimeFormatted}} &rarr; {{.EndTimeFormatted}}</li>
</ul>
<p>&copy; {{.CurrentYear}} ParkSpot</p>`))

// NotifyService follows the reservation event log and tells customers about
// confirmations, cancellations and expiries.
type NotifyService struct {
	Reservations *ReservationService
	Contacts     ContactFinder
	Email        EmailSender
	SMS          SMSSender

	cursor int64
}

func NewNotifyService(reservations *ReservationService, contacts ContactFinder, email EmailSender, sms SMSSender) *NotifyService {
	return &NotifyService{Reservations: reservations, Contacts: contacts, Email: email, SMS: sms}
}

func notifiable(status db.ReservationStatus) bool {
	switch status {
	case db.StatusConfirmed, db.StatusCancelled, db.StatusExpired:
		return true
	}
	return false
}

// Poll handles every event after the cursor and returns how many notifications went out.
func (s *NotifyService) Poll(ctx context.Context) (int, error) {
	events, err := s.Reservations.Events(ctx, s.cursor, 100)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, ev := range events {
		s.cursor = ev.Seq
		if !notifiable(ev.To) {
			continue
		}
		res, err := s.Reservations.GetReservation(ctx, ev.ReservationID)
		if err != nil {
			log.Printf("notify: reservation %s: %v", ev.ReservationID, err)
			continue
		}
		contact, err := s.Contacts.GetContact(ctx, res.CustomerID)
		if err != nil {
			log.Printf("notify: contact for customer %s: %v", res.CustomerID, err)
			continue
		}
		if contact == nil {
			continue
		}
		s.notify(*res, *contact, ev.To)
		sent++
	}
	return sent, nil
}

func (s *NotifyService) notify(res db.Reservation, contact db.CustomerContact, status db.ReservationStatus) {
	translated := statusTranslation(status, contact.Language)
	data := entities.ReservationEmailData{
		UserName:           contact.Name,
		ReservationCode:    res.ID.String(),
		StartTimeFormatted: res.StartTime.Format("02 Jan 2006 15:04 MST"),
		EndTimeFormatted:   res.EndTime.Format("02 Jan 2006 15:04 MST"),
		CurrentYear:        time.Now().Year(),
		Status:             translated,
	}

	var subject, greeting, headline, sms string
	switch contact.Language {
	case "es":
		subject = fmt.Sprintf("Tu reserva está %s - Código: %s", translated, data.ReservationCode)
		greeting, headline = "Hola", fmt.Sprintf("Tu reserva está %s.", translated)
		sms = fmt.Sprintf("ParkSpot: ¡Tu reserva %s está %s! Check-in: %s.", data.ReservationCode, translated, res.StartTime.Format("02/01 15:04"))
	case "fr":
		subject = fmt.Sprintf("Votre réservation est %s - Code : %s", translated, data.ReservationCode)
		greeting, headline = "Bonjour", fmt.Sprintf("Votre réservation est %s.", translated)
		sms = fmt.Sprintf("ParkSpot : votre réservation %s est %s. Arrivée : %s.", data.ReservationCode, translated, res.StartTime.Format("02/01 15:04"))
	default:
		subject = fmt.Sprintf("Your parking reservation is %s - Code: %s", translated, data.ReservationCode)
		greeting, headline = "Hello", fmt.Sprintf("Your reservation is %s.", translated)
		sms = fmt.Sprintf("ParkSpot: Reservation %s has been %s! Check-in: %s.", data.ReservationCode, translated, res.StartTime.Format("02/01 15:04"))
	}

	plain := fmt.Sprintf("%s %s,\n\n%s\n\n%s\n%s - %s\n", greeting, contact.Name, headline,
		data.ReservationCode, data.StartTimeFormatted, data.EndTimeFormatted)

	var html bytes.Buffer
	err := reservationEmailTmpl.Execute(&html, struct {
		entities.ReservationEmailData
		Greeting, Headline string
	}{data, greeting, headline})
	if err != nil {
		log.Printf("notify: rendering email for %s: %v", res.ID, err)
	}

	if s.Email != nil && contact.Email != "" {
		if err := s.Email.SendEmail(contact.Email, contact.Name, subject, plain, html.String()); err != nil {
			log.Printf("notify: email for reservation %s failed: %v", res.ID, err)
		}
	}
	if s.SMS != nil && contact.Phone != "" {
		if err := s.SMS.SendSMS(contact.Phone, sms); err != nil {
			log.Printf("notify: SMS for reservation %s failed: %v", res.ID, err)
		}
	}
}

// FastForward moves the cursor past every event already in the log, so a restarted
// notifier does not resend old messages.
func (s *NotifyService) FastForward(ctx context.Context) error {
	for {
		events, err := s.Reservations.Events(ctx, s.cursor, 500)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		s.cursor = events[len(events)-1].Seq
	}
}

// Run polls the event log until ctx is done.
func (s *NotifyService) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	log.Printf("Notifier started: polling reservation events every %s", every)
	for {
		select {
		case <-ctx.Done():
			log.Println("Notifier stopped.")
			return
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil {
				log.Printf("notify: polling events: %v", err)
			}
		}
	}
}

func statusTranslation(status db.ReservationStatus, lang string) string {
	switch lang {
	case "es":
		switch status {
		case db.StatusConfirmed:
			return "confirmada"
		case db.StatusCancelled:
			return "cancelada"
		case db.StatusExpired:
			return "vencida"
		}
	case "fr":
		switch status {
		case db.StatusConfirmed:
			return "confirmée"
		case db.StatusCancelled:
			return "annulée"
		case db.StatusExpired:
			return "expirée"
		}
	}
	return string(status)
}
