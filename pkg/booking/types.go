package booking

// Doctor is a bookable practitioner.
type Doctor struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Availability   string `json:"availability"`
}

// Appointment is a booked slot. SerialNumber is allocated by the backend.
type Appointment struct {
	ID           int    `json:"id"`
	DoctorID     int    `json:"doctor_id"`
	DoctorName   string `json:"doctor_name"`
	Date         string `json:"date"`
	SerialNumber int    `json:"serial_number"`
	Availability string `json:"availability"`
	PatientName  string `json:"patient_name"`
	PatientAge   int    `json:"patient_age,omitempty"`
}

// NewAppointment is submitted to create an appointment. Date is YYYY-MM-DD.
// A zero PatientAge means not given.
type NewAppointment struct {
	DoctorID    int    `json:"doctor_id"`
	Date        string `json:"date"`
	PatientName string `json:"patient_name"`
	PatientAge  int    `json:"patient_age,omitempty"`
}

// Message is the backend's plain acknowledgement.
type Message struct {
	Message string `json:"message"`
}

// AudioReply is the voice assistant's answer to a recording.
type AudioReply struct {
	UserText    string `json:"user_text"`
	LLMResponse string `json:"llm_response"`
	AudioID     string `json:"audio_id,omitempty"`
}

// TextReply is the voice assistant's answer to typed text.
type TextReply struct {
	LLMResponse string `json:"llm_response"`
	AudioID     string `json:"audio_id,omitempty"`
}

// Organisation is a client organisation ("client" on the backend).
type Organisation struct {
	ID           string `json:"id"`
	BusinessName string `json:"business_name"`
	Address      string `json:"address"`
	Email        string `json:"email"`
	Mobile       string `json:"mobile"`
	IsActive     bool   `json:"is_active"`
	Modules      string `json:"modules"`
	CreatedAt    string `json:"created_at"`
}

// NewOrganisation is submitted to create an organisation.
type NewOrganisation struct {
	BusinessName string `json:"business_name"`
	Address      string `json:"address"`
	Email        string `json:"email"`
	Mobile       string `json:"mobile"`
	IsActive     *bool  `json:"is_active,omitempty"`
	Modules      string `json:"modules,omitempty"`
}

type OrganisationCreated struct {
	Message string       `json:"message"`
	Client  Organisation `json:"client"`
}

// DataUser is a user account inside an organisation.
type DataUser struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

type OrganisationUsers struct {
	ClientID   string     `json:"client_id"`
	ClientName string     `json:"client_name"`
	Users      []DataUser `json:"users"`
	TotalUsers int        `json:"total_users"`
}

// DataUserUpdate changes a data user. Nil fields are left alone.
type DataUserUpdate struct {
	Username    *string `json:"username,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	NewPassword *string `json:"new_password,omitempty"`
	OldPassword *string `json:"old_password,omitempty"`
}

type DataUserUpdated struct {
	Message string   `json:"message"`
	User    DataUser `json:"user"`
}
