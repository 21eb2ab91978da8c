package authtest

import (
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/aussiebroadwan/medibook/pkg/booking"
	"github.com/aussiebroadwan/medibook/pkg/cryptox"
	"github.com/aussiebroadwan/medibook/pkg/httpx"
	"github.com/aussiebroadwan/medibook/pkg/idx"
)

const maxAudioUpload = 10 << 20

func (b *Backend) handleDoctors(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	doctors := slices.Clone(b.doctors)
	b.mu.Unlock()

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"doctors": doctors})
}

func (b *Backend) handleAppointments(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}

	b.mu.Lock()
	out := []booking.Appointment{}
	for id, a := range b.appointments {
		if b.owners[id] == uid {
			out = append(out, *a)
		}
	}
	b.mu.Unlock()

	slices.SortFunc(out, func(x, y booking.Appointment) int { return x.ID - y.ID })
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (b *Backend) handleCreateAppointment(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var in booking.NewAppointment
	if err := decodeBody(w, r, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.Validate(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	i := slices.IndexFunc(b.doctors, func(d booking.Doctor) bool { return d.ID == in.DoctorID })
	if i < 0 {
		httpx.WriteError(w, http.StatusNotFound, "Doctor not found")
		return
	}
	doc := b.doctors[i]

	serial := 1
	for _, a := range b.appointments {
		if a.DoctorID == doc.ID && a.Date == in.Date {
			serial++
		}
	}

	appt := &booking.Appointment{
		ID:           b.nextAppt,
		DoctorID:     doc.ID,
		DoctorName:   doc.Name,
		Date:         in.Date,
		SerialNumber: serial,
		Availability: doc.Availability,
		PatientName:  in.PatientName,
		PatientAge:   in.PatientAge,
	}
	b.nextAppt++
	b.appointments[appt.ID] = appt
	b.owners[appt.ID] = uid

	httpx.WriteJSON(w, http.StatusCreated, appt)
}

func (b *Backend) handleCancelAppointment(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.appointments[id]; !ok || b.owners[id] != uid {
		httpx.WriteError(w, http.StatusNotFound, "Appointment not found")
		return
	}
	delete(b.appointments, id)
	delete(b.owners, id)
	httpx.WriteJSON(w, http.StatusOK, booking.Message{Message: "Appointment cancelled"})
}

func (b *Backend) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	f, hdr, err := r.FormFile("audio")
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "read audio")
		return
	}

	id := b.storeAudio(data)
	httpx.WriteJSON(w, http.StatusOK, booking.AudioReply{
		UserText:    fmt.Sprintf("[%s, %d bytes, %s]", hdr.Filename, len(data), languageOf(r.FormValue("language"))),
		LLMResponse: "I can help you book an appointment. Which doctor would you like to see?",
		AudioID:     id,
	})
}

func (b *Backend) handleProcessText(w http.ResponseWriter, r *http.Request) {
	var in struct {
		UserText string `json:"user-text"`
		Language string `json:"language"`
	}
	if err := decodeBody(w, r, &in); err != nil || in.UserText == "" {
		httpx.WriteError(w, http.StatusBadRequest, "No text provided")
		return
	}

	reply := fmt.Sprintf("(%s) You said: %s", languageOf(in.Language), in.UserText)
	id := b.storeAudio([]byte(reply))
	httpx.WriteJSON(w, http.StatusOK, booking.TextReply{LLMResponse: reply, AudioID: id})
}

func languageOf(s string) string {
	if s == "" {
		return "en"
	}
	return s
}

func (b *Backend) storeAudio(data []byte) string {
	id := idx.New().String()
	b.mu.Lock()
	b.audio[id] = data
	b.mu.Unlock()
	return id
}

func (b *Backend) handleGetAudio(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	data, ok := b.audio[r.PathValue("id")]
	b.mu.Unlock()
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "Audio not found")
		return
	}

	httpx.NoCache(w)
	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (b *Backend) handleCleanup(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	delete(b.audio, r.PathValue("id"))
	b.mu.Unlock()
	httpx.WriteJSON(w, http.StatusOK, booking.Message{Message: "Audio cleaned up"})
}

func (b *Backend) handleCreateOrganisation(w http.ResponseWriter, r *http.Request) {
	var in booking.NewOrganisation
	if err := decodeBody(w, r, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.BusinessName == "" || in.Email == "" {
		httpx.WriteError(w, http.StatusBadRequest, "business_name and email are required")
		return
	}

	org := &booking.Organisation{
		ID:           idx.New().String(),
		BusinessName: in.BusinessName,
		Address:      in.Address,
		Email:        in.Email,
		Mobile:       in.Mobile,
		IsActive:     in.IsActive == nil || *in.IsActive,
		Modules:      in.Modules,
		CreatedAt:    time.Now().UTC().Format(time.RFC3339),
	}

	b.mu.Lock()
	b.orgs[org.ID] = org
	b.mu.Unlock()

	httpx.WriteJSON(w, http.StatusCreated, booking.OrganisationCreated{Message: "Client created successfully", Client: *org})
}

func (b *Backend) handleOrganisationUsers(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	b.mu.Lock()
	defer b.mu.Unlock()

	org, ok := b.orgs[id]
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "Client not found")
		return
	}

	users := []booking.DataUser{}
	for _, a := range b.byID {
		if a.clientID == id {
			users = append(users, dataUser(a))
		}
	}
	slices.SortFunc(users, func(x, y booking.DataUser) int {
		xi, _ := strconv.Atoi(x.ID)
		yi, _ := strconv.Atoi(y.ID)
		return xi - yi
	})

	httpx.WriteJSON(w, http.StatusOK, booking.OrganisationUsers{
		ClientID:   org.ID,
		ClientName: org.BusinessName,
		Users:      users,
		TotalUsers: len(users),
	})
}

func dataUser(a *account) booking.DataUser {
	return booking.DataUser{
		ID:        strconv.Itoa(a.id),
		Username:  a.username,
		Role:      a.role,
		IsActive:  a.active,
		CreatedAt: a.createdAt.Format(time.RFC3339),
	}
}

// handleUpdateDataUser lets admins edit anyone and users edit themselves.
// Changing your own password requires the old one.
func (b *Backend) handleUpdateDataUser(w http.ResponseWriter, r *http.Request) {
	uid, err := callerID(r)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}
	claims, _ := httpx.ClaimsFromContext(r.Context())
	isAdmin := claims.Role == RoleAdmin

	target, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if target != uid && !isAdmin {
		httpx.WriteError(w, http.StatusForbidden, "insufficient role")
		return
	}

	var in booking.DataUserUpdate
	if err := decodeBody(w, r, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	b.mu.Lock()
	a, ok := b.byID[target]
	var oldHash string
	if ok {
		oldHash = a.hash
	}
	b.mu.Unlock()
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "User not found")
		return
	}

	var newHash string
	if in.NewPassword != nil {
		if !isAdmin {
			if in.OldPassword == nil || cryptox.VerifyPassword(*in.OldPassword, oldHash) != nil {
				httpx.WriteError(w, http.StatusBadRequest, "Old password is incorrect")
				return
			}
		}
		if newHash, err = cryptox.HashPassword(*in.NewPassword, b.pwParams); err != nil {
			httpx.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if in.Username != nil && *in.Username != a.username {
		if _, taken := b.accounts[*in.Username]; taken {
			httpx.WriteError(w, http.StatusConflict, "Username already exists")
			return
		}
		delete(b.accounts, a.username)
		a.username = *in.Username
		b.accounts[a.username] = a
	}
	if in.IsActive != nil {
		a.active = *in.IsActive
	}
	if newHash != "" {
		a.hash = newHash
	}

	httpx.WriteJSON(w, http.StatusOK, booking.DataUserUpdated{Message: "User updated successfully", User: dataUser(a)})
}
