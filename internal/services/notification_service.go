// internal/services/notification_service.go
package services

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/ndakohub/ndako-backend/internal/config"
	"github.com/ndakohub/ndako-backend/internal/models"
)

// NotificationService delivers transactional messages for the contract,
// escrow and dispute flows. Email goes over SMTP when configured; the OTP
// codes go over SMS. Both degrade to log output in development so the flows
// stay runnable without providers.
type NotificationService struct {
	db     *gorm.DB
	config *config.Config
}

type EmailTemplate struct {
	Subject string
	Body    string
}

func NewNotificationService(db *gorm.DB, config *config.Config) *NotificationService {
	return &NotificationService{
		db:     db,
		config: config,
	}
}

// Signature flow

func (s *NotificationService) SendSignatureRequestCode(signer *models.User, contract *models.Contract, code string) error {
	// The code itself travels by SMS only.
	if err := s.sendSMS(signer.Phone, fmt.Sprintf("Your signature code for contract %s is %s. It expires in %d minutes.",
		contract.ReferenceCode, code, int(s.config.Otp.TTL.Minutes()))); err != nil {
		return err
	}

	data := map[string]interface{}{
		"Username":      signer.Username,
		"ReferenceCode": contract.ReferenceCode,
		"ContractURL":   fmt.Sprintf("%s/contracts/%s", s.config.Frontend.BaseURL, contract.ID),
	}
	template := s.getEmailTemplate("signature_request")
	body, err := s.renderTemplate(template.Body, data)
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return s.sendEmail(signer.Email, "Signature requested - "+contract.ReferenceCode, body)
}

func (s *NotificationService) SendSignatureRecorded(contract *models.Contract, role models.SignerRole) error {
	return s.notifyParties(contract, "signature_recorded", "Signature recorded - "+contract.ReferenceCode,
		map[string]interface{}{
			"ReferenceCode": contract.ReferenceCode,
			"SignedRole":    string(role),
		})
}

func (s *NotificationService) SendContractFullySigned(contract *models.Contract) error {
	data := map[string]interface{}{
		"ReferenceCode": contract.ReferenceCode,
		"ContractURL":   fmt.Sprintf("%s/contracts/%s", s.config.Frontend.BaseURL, contract.ID),
	}
	if contract.RetractionDeadline != nil {
		data["RetractionDeadline"] = contract.RetractionDeadline.Format("2006-01-02 15:04")
	}
	return s.notifyParties(contract, "fully_signed", "Contract fully signed - "+contract.ReferenceCode, data)
}

// Contract lifecycle

func (s *NotificationService) SendContractReady(contract *models.Contract) error {
	return s.notifyParties(contract, "contract_ready", "Contract ready for signature - "+contract.ReferenceCode,
		map[string]interface{}{
			"ReferenceCode": contract.ReferenceCode,
			"ContractURL":   fmt.Sprintf("%s/contracts/%s", s.config.Frontend.BaseURL, contract.ID),
		})
}

func (s *NotificationService) SendContractActivated(contract *models.Contract) error {
	return s.notifyParties(contract, "contract_activated", "Contract active - "+contract.ReferenceCode,
		map[string]interface{}{
			"ReferenceCode": contract.ReferenceCode,
		})
}

func (s *NotificationService) SendContractCancelled(contract *models.Contract, reason string) error {
	return s.notifyParties(contract, "contract_cancelled", "Contract cancelled - "+contract.ReferenceCode,
		map[string]interface{}{
			"ReferenceCode": contract.ReferenceCode,
			"Reason":        reason,
		})
}

func (s *NotificationService) SendContractTerminated(contract *models.Contract, reason string) error {
	return s.notifyParties(contract, "contract_terminated", "Contract terminated - "+contract.ReferenceCode,
		map[string]interface{}{
			"ReferenceCode": contract.ReferenceCode,
			"Reason":        reason,
		})
}

// Escrow flow

func (s *NotificationService) SendFundsHeld(entry *models.EscrowEntry) error {
	users, err := s.loadEntryParties(entry)
	if err != nil {
		return err
	}

	data := map[string]interface{}{
		"Amount":   entry.Amount.StringFixed(2),
		"Currency": entry.Currency,
		"DueDate":  entry.DueDate.Format("2006-01-02"),
	}
	if entry.AutoReleaseAt != nil {
		data["AutoReleaseAt"] = entry.AutoReleaseAt.Format("2006-01-02 15:04")
	}

	template := s.getEmailTemplate("funds_held")
	subject := fmt.Sprintf("Rent payment secured (%s %s)", entry.Amount.StringFixed(2), entry.Currency)
	for _, u := range users {
		data["Username"] = u.Username
		body, rerr := s.renderTemplate(template.Body, data)
		if rerr != nil {
			return fmt.Errorf("failed to render email template: %w", rerr)
		}
		if err := s.sendEmail(u.Email, subject, body); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) SendFundsReleased(entry *models.EscrowEntry) error {
	users, err := s.loadEntryParties(entry)
	if err != nil {
		return err
	}

	template := s.getEmailTemplate("funds_released")
	subject := fmt.Sprintf("Rent released to landlord (%s %s)", entry.ReleasedAmount.StringFixed(2), entry.Currency)
	for _, u := range users {
		body, rerr := s.renderTemplate(template.Body, map[string]interface{}{
			"Username": u.Username,
			"Amount":   entry.ReleasedAmount.StringFixed(2),
			"Currency": entry.Currency,
		})
		if rerr != nil {
			return fmt.Errorf("failed to render email template: %w", rerr)
		}
		if err := s.sendEmail(u.Email, subject, body); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) SendFundsRefunded(entry *models.EscrowEntry, reason string) error {
	users, err := s.loadEntryParties(entry)
	if err != nil {
		return err
	}

	template := s.getEmailTemplate("funds_refunded")
	subject := fmt.Sprintf("Rent refunded to tenant (%s %s)", entry.RefundedAmount.StringFixed(2), entry.Currency)
	for _, u := range users {
		body, rerr := s.renderTemplate(template.Body, map[string]interface{}{
			"Username": u.Username,
			"Amount":   entry.RefundedAmount.StringFixed(2),
			"Currency": entry.Currency,
			"Reason":   reason,
		})
		if rerr != nil {
			return fmt.Errorf("failed to render email template: %w", rerr)
		}
		if err := s.sendEmail(u.Email, subject, body); err != nil {
			return err
		}
	}
	return nil
}

// Dispute flow

func (s *NotificationService) SendDisputeOpened(dispute *models.Dispute) error {
	var respondent models.User
	if err := s.db.First(&respondent, "id = ?", dispute.RespondentID).Error; err != nil {
		return fmt.Errorf("respondent not found: %w", err)
	}

	template := s.getEmailTemplate("dispute_opened")
	body, err := s.renderTemplate(template.Body, map[string]interface{}{
		"Username": respondent.Username,
		"Motif":    dispute.Motif,
		"Category": string(dispute.Category),
	})
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return s.sendEmail(respondent.Email, "A dispute was opened against your contract", body)
}

func (s *NotificationService) SendMediatorAssigned(dispute *models.Dispute, mediator *models.User) error {
	template := s.getEmailTemplate("mediator_assigned")
	body, err := s.renderTemplate(template.Body, map[string]interface{}{
		"Username": mediator.Username,
		"Motif":    dispute.Motif,
		"CaseURL":  fmt.Sprintf("%s/disputes/%s", s.config.Frontend.BaseURL, dispute.ID),
	})
	if err != nil {
		return fmt.Errorf("failed to render email template: %w", err)
	}
	return s.sendEmail(mediator.Email, "Dispute assigned to you", body)
}

func (s *NotificationService) SendDisputeResolved(dispute *models.Dispute) error {
	outcome := ""
	if dispute.Outcome != nil {
		outcome = string(*dispute.Outcome)
	}

	for _, id := range []uuid.UUID{dispute.ClaimantID, dispute.RespondentID} {
		var user models.User
		if err := s.db.First(&user, "id = ?", id).Error; err != nil {
			continue
		}
		template := s.getEmailTemplate("dispute_resolved")
		body, rerr := s.renderTemplate(template.Body, map[string]interface{}{
			"Username": user.Username,
			"Outcome":  outcome,
			"Notes":    dispute.ResolutionNotes,
		})
		if rerr != nil {
			return fmt.Errorf("failed to render email template: %w", rerr)
		}
		if err := s.sendEmail(user.Email, "Dispute resolved", body); err != nil {
			return err
		}
	}
	return nil
}

// Helper methods

func (s *NotificationService) notifyParties(contract *models.Contract, templateType, subject string, data map[string]interface{}) error {
	template := s.getEmailTemplate(templateType)
	for _, id := range []uuid.UUID{contract.LandlordID, contract.TenantID} {
		var user models.User
		if err := s.db.First(&user, "id = ?", id).Error; err != nil {
			continue
		}
		data["Username"] = user.Username
		body, err := s.renderTemplate(template.Body, data)
		if err != nil {
			return fmt.Errorf("failed to render email template: %w", err)
		}
		if err := s.sendEmail(user.Email, subject, body); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationService) loadEntryParties(entry *models.EscrowEntry) ([]models.User, error) {
	var users []models.User
	if err := s.db.Where("id IN ?", []uuid.UUID{entry.PayerID, entry.BeneficiaryID}).
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load entry parties: %w", err)
	}
	return users, nil
}

func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		logrus.WithFields(logrus.Fields{"to": to, "subject": subject}).
			Info("Email delivery skipped (SMTP not configured)")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", to, subject, body))
	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

// sendSMS logs the message until an SMS provider is wired in. The OTP flow
// treats delivery as best effort; issuance is what the database records.
func (s *NotificationService) sendSMS(phone, message string) error {
	logrus.WithField("phone", phone).Info("SMS delivery skipped (no provider configured)")
	_ = message
	return nil
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) getEmailTemplate(templateType string) EmailTemplate {
	templates := map[string]EmailTemplate{
		"signature_request": {
			Subject: "Signature requested",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>Your signature is requested on contract {{.ReferenceCode}}. A one-time code was sent to your phone.</p>
	<a href="{{.ContractURL}}">Review the contract</a>
	<p>Best regards,<br>Ndako Team</p>
</body>
</html>`,
		},
		"fully_signed": {
			Subject: "Contract fully signed",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>Contract {{.ReferenceCode}} is now signed by both parties.</p>
	{{if .RetractionDeadline}}<p>Either party may withdraw until {{.RetractionDeadline}}.</p>{{end}}
	<a href="{{.ContractURL}}">View the signed contract</a>
	<p>Best regards,<br>Ndako Team</p>
</body>
</html>`,
		},
		"funds_held": {
			Subject: "Rent payment secured",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>{{.Amount}} {{.Currency}} for the rent due {{.DueDate}} is now held in escrow.</p>
	{{if .AutoReleaseAt}}<p>It will be released automatically on {{.AutoReleaseAt}} unless a dispute is opened.</p>{{end}}
	<p>Best regards,<br>Ndako Team</p>
</body>
</html>`,
		},
		"dispute_opened": {
			Subject: "Dispute opened",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	<p>A dispute ({{.Category}}) was opened on your contract: {{.Motif}}</p>
	<p>Any funds concerned are frozen until a mediator resolves the case.</p>
	<p>Best regards,<br>Ndako Team</p>
</body>
</html>`,
		},
	}

	if template, exists := templates[templateType]; exists {
		return template
	}

	return EmailTemplate{
		Subject: "Notification",
		Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.Username}},</h2>
	{{if .Reason}}<p>{{.Reason}}</p>{{end}}
	{{if .Outcome}}<p>Outcome: {{.Outcome}}</p>{{end}}
	{{if .Amount}}<p>Amount: {{.Amount}} {{.Currency}}</p>{{end}}
	<p>Best regards,<br>Ndako Team</p>
</body>
</html>`,
	}
}
