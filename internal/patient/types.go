package patient

import "time"

// RegisteredBy says who created the patient record
type RegisteredBy string

const (
	RegisteredBySelf        RegisteredBy = "patient"
	RegisteredByResponsible RegisteredBy = "responsible"
)

// Patient is the person whose medication is tracked on this device
type Patient struct {
	ID                  int          `json:"id"`
	FirstName           string       `json:"first_name"`
	LastName            string       `json:"last_name"`
	PhoneNumber         string       `json:"phone_number"`
	RegisteredBy        RegisteredBy `json:"registered_by"`
	ResponsiblePersonID *int         `json:"responsible_person_id,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// ResponsiblePerson is a caregiver registering on a patient's behalf
type ResponsiblePerson struct {
	ID          int       `json:"id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	PhoneNumber string    `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
