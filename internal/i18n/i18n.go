// internal/i18n/i18n.go
package i18n

import (
	"fmt"
	"sync"
)

// The platform serves Cameroon, so French is a first-class locale and
// English the fallback. Catalogs are compiled in; there is no locale file
// to deploy or fail on at startup.
type I18n struct {
	mu           sync.RWMutex
	translations map[string]map[string]string
	defaultLang  string
}

var instance *I18n
var once sync.Once

func Initialize() error {
	once.Do(func() {
		instance = &I18n{
			translations: map[string]map[string]string{
				"en": englishCatalog,
				"fr": frenchCatalog,
			},
			defaultLang: "en",
		}
	})
	return nil
}

func (i *I18n) T(lang, key string, args ...interface{}) string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if translations, exists := i.translations[lang]; exists {
		if text, exists := translations[key]; exists {
			if len(args) > 0 {
				return fmt.Sprintf(text, args...)
			}
			return text
		}
	}

	if lang != i.defaultLang {
		if translations, exists := i.translations[i.defaultLang]; exists {
			if text, exists := translations[key]; exists {
				if len(args) > 0 {
					return fmt.Sprintf(text, args...)
				}
				return text
			}
		}
	}

	return key
}

// Global functions
func T(lang, key string, args ...interface{}) string {
	if instance != nil {
		return instance.T(lang, key, args...)
	}
	return key
}

func GetSupportedLanguages() []string {
	if instance == nil {
		return []string{"en"}
	}

	instance.mu.RLock()
	defer instance.mu.RUnlock()

	langs := make([]string, 0, len(instance.translations))
	for lang := range instance.translations {
		langs = append(langs, lang)
	}
	return langs
}

var englishCatalog = map[string]string{
	KeySuccess: "Success",
	KeyError:   "Error",

	KeyAuthRequired:           "Authentication required",
	KeyAuthInvalidToken:       "Invalid or expired token",
	KeyAuthInvalidCredentials: "Invalid email or password",
	KeyAuthLoginSuccess:       "Logged in successfully",
	KeyAuthLogoutSuccess:      "Logged out successfully",
	KeyAuthRegisterSuccess:    "Account created successfully",

	KeyUserNotFound:  "User not found",
	KeyUserSuspended: "Account is suspended",

	KeyContractCreated:     "Contract drafted",
	KeyContractNotFound:    "Contract not found",
	KeyContractSent:        "Contract sent for signature",
	KeyContractCancelled:   "Contract cancelled",
	KeyContractActivated:   "Contract is now active",
	KeyContractTerminated:  "Contract terminated",
	KeyContractNotSignable: "Contract is not open for signature",
	KeyContractNotEditable: "Contract can no longer be modified",

	KeySignatureCodeSent:    "A signature code was sent to your phone",
	KeySignatureRecorded:    "Signature recorded",
	KeySignatureAlreadyDone: "This party has already signed",
	KeyOtpInvalid:           "Invalid code",
	KeyOtpExpired:           "Code has expired, request a new one",
	KeyOtpTooManyAttempts:   "Too many attempts, request a new code",

	KeyEscrowNotFound:      "Payment entry not found",
	KeyEscrowCaptured:      "Payment secured in escrow",
	KeyEscrowReleased:      "Funds released to landlord",
	KeyEscrowRefunded:      "Funds refunded to tenant",
	KeyEscrowFrozen:        "Funds are frozen pending dispute resolution",
	KeyEscrowNotReleasable: "Funds cannot be released yet",
	KeyPaymentDeclined:     "Payment was declined",
	KeyPaymentTimeout:      "Payment provider did not respond, please retry",

	KeyDisputeOpened:    "Dispute opened",
	KeyDisputeDuplicate: "A dispute is already open for this payment",
	KeyDisputeAssigned:  "Mediator assigned",
	KeyDisputeResolved:  "Dispute resolved",
	KeyDisputeWithdrawn: "Dispute withdrawn",
	KeyDisputeNotFound:  "Dispute not found",

	KeyValidationRequired: "%s is required",
	KeyValidationInvalid:  "Invalid %s",

	KeyRateLimitExceeded: "Too many requests, please slow down",

	KeyInternalError: "An internal error occurred",
	KeyNotFound:      "Resource not found",
	KeyForbidden:     "You are not allowed to perform this action",
	KeyConflict:      "The resource was modified concurrently, please retry",
}

var frenchCatalog = map[string]string{
	KeySuccess: "Succès",
	KeyError:   "Erreur",

	KeyAuthRequired:           "Authentification requise",
	KeyAuthInvalidToken:       "Jeton invalide ou expiré",
	KeyAuthInvalidCredentials: "Email ou mot de passe invalide",
	KeyAuthLoginSuccess:       "Connexion réussie",
	KeyAuthLogoutSuccess:      "Déconnexion réussie",
	KeyAuthRegisterSuccess:    "Compte créé avec succès",

	KeyUserNotFound:  "Utilisateur introuvable",
	KeyUserSuspended: "Le compte est suspendu",

	KeyContractCreated:     "Contrat généré",
	KeyContractNotFound:    "Contrat introuvable",
	KeyContractSent:        "Contrat envoyé pour signature",
	KeyContractCancelled:   "Contrat annulé",
	KeyContractActivated:   "Le contrat est maintenant actif",
	KeyContractTerminated:  "Contrat résilié",
	KeyContractNotSignable: "Le contrat n'est pas ouvert à la signature",
	KeyContractNotEditable: "Le contrat ne peut plus être modifié",

	KeySignatureCodeSent:    "Un code de signature a été envoyé sur votre téléphone",
	KeySignatureRecorded:    "Signature enregistrée",
	KeySignatureAlreadyDone: "Cette partie a déjà signé",
	KeyOtpInvalid:           "Code invalide",
	KeyOtpExpired:           "Le code a expiré, demandez-en un nouveau",
	KeyOtpTooManyAttempts:   "Trop de tentatives, demandez un nouveau code",

	KeyEscrowNotFound:      "Paiement introuvable",
	KeyEscrowCaptured:      "Paiement sécurisé sous séquestre",
	KeyEscrowReleased:      "Fonds versés au bailleur",
	KeyEscrowRefunded:      "Fonds remboursés au locataire",
	KeyEscrowFrozen:        "Les fonds sont gelés en attendant la résolution du litige",
	KeyEscrowNotReleasable: "Les fonds ne peuvent pas encore être versés",
	KeyPaymentDeclined:     "Le paiement a été refusé",
	KeyPaymentTimeout:      "Le prestataire de paiement ne répond pas, veuillez réessayer",

	KeyDisputeOpened:    "Litige ouvert",
	KeyDisputeDuplicate: "Un litige est déjà ouvert pour ce paiement",
	KeyDisputeAssigned:  "Médiateur assigné",
	KeyDisputeResolved:  "Litige résolu",
	KeyDisputeWithdrawn: "Litige retiré",
	KeyDisputeNotFound:  "Litige introuvable",

	KeyValidationRequired: "%s est requis",
	KeyValidationInvalid:  "%s invalide",

	KeyRateLimitExceeded: "Trop de requêtes, veuillez ralentir",

	KeyInternalError: "Une erreur interne est survenue",
	KeyNotFound:      "Ressource introuvable",
	KeyForbidden:     "Vous n'êtes pas autorisé à effectuer cette action",
	KeyConflict:      "La ressource a été modifiée simultanément, veuillez réessayer",
}
