package form

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"norskform_backend/internal/cache"
	"norskform_backend/internal/directory"
	"norskform_backend/internal/geonorge"
	"norskform_backend/internal/lookup"
	"norskform_backend/internal/postal"
	"norskform_backend/platform/apperr"
	"norskform_backend/platform/config"
	"norskform_backend/platform/logger"
	"norskform_backend/platform/phone"
)

// Field names exposed by the form API.
const (
	FieldMunicipality = "municipality"
	FieldStreet       = "street"
	FieldHouseNumber  = "houseNumber"
	FieldPhone        = "phone"
	FieldPostalCode   = "postalCode"
)

// Backends bundles the lookup clients, per-kind caches, and timing config a
// session needs to build its field engines. One Backends instance is shared
// by all sessions; the caches are the only cross-session state.
type Backends struct {
	Geocoder  *geonorge.Client
	Directory *directory.Client
	Postal    *postal.Client

	Municipalities cache.Store[geonorge.Municipality]
	Streets        cache.Store[geonorge.Street]
	Addresses      cache.Store[geonorge.Address]
	// Owners must not persist phone-owner data between sessions; wire a
	// null store here.
	Owners cache.Store[directory.Owner]
	Places cache.Store[postal.Place]

	Lookup config.LookupConfig
	Log    *logger.Logger
}

// Selection holds the records the user has picked so far. Dependent fields
// are cleared whenever an upstream selection changes.
type Selection struct {
	Municipality *geonorge.Municipality `json:"municipality,omitempty"`
	Street       *geonorge.Street       `json:"street,omitempty"`
	HouseNumber  *geonorge.Address      `json:"houseNumber,omitempty"`
	PostalCode   string                 `json:"postalCode,omitempty"`
	PostalArea   string                 `json:"postalArea,omitempty"`
}

// FieldState is the wire shape of one field's lookup state.
type FieldState struct {
	Status     lookup.Status `json:"status"`
	Data       interface{}   `json:"data,omitempty"`
	ErrDetail  string        `json:"error,omitempty"`
	Validation bool          `json:"validation,omitempty"`
	// Failures is the consecutive transport-failure count; the client
	// escalates to a blocking manual-entry notice once it reaches 2.
	Failures int `json:"failures"`
}

// State is the full form snapshot returned to the client.
type State struct {
	Selection Selection             `json:"selection"`
	Fields    map[string]FieldState `json:"fields"`
}

// Session owns one visitor's five field engines and their selections.
// Engines for dependent fields (street, house number) are rebuilt when the
// selection they depend on changes, so a rebuilt field can never receive a
// completion that belongs to the old dependency.
type Session struct {
	ID string

	mu       sync.Mutex
	backends *Backends
	lastSeen time.Time

	municipality *lookup.Engine[geonorge.Municipality]
	street       *lookup.Engine[geonorge.Street]
	houseNumber  *lookup.Engine[geonorge.Address]
	phone        *lookup.Engine[directory.Owner]
	postalCode   *lookup.Engine[postal.Place]

	selection Selection
}

// NewSession builds a session with fresh engines. Street and house-number
// engines start gated until their upstream selections exist.
func NewSession(id string, backends *Backends) *Session {
	s := &Session{
		ID:       id,
		backends: backends,
		lastSeen: time.Now(),
	}

	addressCfg := lookup.Config{
		Debounce: backends.Lookup.GetAddressDebounce(),
		Timeout:  backends.Lookup.GetLookupTimeout(),
	}
	phoneCfg := lookup.Config{
		Debounce: backends.Lookup.GetPhoneDebounce(),
		Timeout:  backends.Lookup.GetLookupTimeout(),
	}

	s.municipality = lookup.NewEngine(
		lookup.AdapterFunc[geonorge.Municipality]{
			Name: "geocoder.municipality",
			Fn:   backends.Geocoder.SearchMunicipalities,
		},
		backends.Municipalities,
		lookup.MinLengthGate(2),
		addressCfg,
		backends.Log,
	)

	s.street = s.newStreetEngine("")
	s.houseNumber = s.newHouseNumberEngine("", "")

	s.phone = lookup.NewEngine(
		lookup.AdapterFunc[directory.Owner]{
			Name: "directory.phone",
			Fn:   backends.Directory.Lookup,
		},
		backends.Owners,
		phoneGate,
		phoneCfg,
		backends.Log,
	)

	s.postalCode = lookup.NewEngine(
		lookup.AdapterFunc[postal.Place]{
			Name: "postal.code",
			Fn:   backends.Postal.Resolve,
		},
		backends.Places,
		postalGate,
		addressCfg,
		backends.Log,
	)

	return s
}

// newStreetEngine binds a street engine to one municipality. The gate
// embeds the municipality ID in the query so the shared street cache keys
// per municipality; the adapter splits it back out.
func (s *Session) newStreetEngine(municipalityID string) *lookup.Engine[geonorge.Street] {
	gate := func(raw string) (string, error) {
		if municipalityID == "" {
			return "", apperr.Validation("select a municipality first")
		}
		trimmed := strings.TrimSpace(raw)
		if len([]rune(trimmed)) < 2 {
			return "", lookup.ErrTooShort
		}
		return municipalityID + "|" + trimmed, nil
	}

	adapter := lookup.AdapterFunc[geonorge.Street]{
		Name: "geocoder.street",
		Fn: func(ctx context.Context, query string) ([]geonorge.Street, error) {
			muniID, text, ok := strings.Cut(query, "|")
			if !ok {
				return nil, fmt.Errorf("malformed street query %q", query)
			}
			return s.backends.Geocoder.SearchStreets(ctx, muniID, text)
		},
	}

	return lookup.NewEngine(adapter, s.backends.Streets, gate, lookup.Config{
		Debounce: s.backends.Lookup.GetAddressDebounce(),
		Timeout:  s.backends.Lookup.GetLookupTimeout(),
	}, s.backends.Log)
}

// newHouseNumberEngine binds a house-number engine to one street. House
// numbers are an exact-key fetch: the gate ignores the raw input and always
// resolves the bound composite key, which doubles as the shared cache key.
func (s *Session) newHouseNumberEngine(municipalityID, streetID string) *lookup.Engine[geonorge.Address] {
	gate := func(string) (string, error) {
		if municipalityID == "" || streetID == "" {
			return "", apperr.Validation("select a street first")
		}
		return municipalityID + "|" + streetID, nil
	}

	adapter := lookup.AdapterFunc[geonorge.Address]{
		Name: "geocoder.housenumber",
		Fn: func(ctx context.Context, query string) ([]geonorge.Address, error) {
			muniID, stID, ok := strings.Cut(query, "|")
			if !ok {
				return nil, fmt.Errorf("malformed house number query %q", query)
			}
			return s.backends.Geocoder.HouseNumbers(ctx, muniID, stID)
		},
	}

	return lookup.NewEngine(adapter, s.backends.Addresses, gate, lookup.Config{
		Debounce: s.backends.Lookup.GetAddressDebounce(),
		Timeout:  s.backends.Lookup.GetLookupTimeout(),
	}, s.backends.Log)
}

// phoneGate normalizes phone input to the bare 8-digit national number.
// Partial input sits idle; a country-code prefix is a validation error
// surfaced before any directory call.
func phoneGate(raw string) (string, error) {
	digits := strings.TrimSpace(raw)
	national, err := phone.NormalizeNational(digits)
	if err == nil {
		return national, nil
	}
	if errors.Is(err, phone.ErrCountryPrefix) {
		return "", apperr.Validation("phone number must be 8 digits without country code")
	}
	// Not yet 8 digits: keep the field idle while the user types.
	return "", lookup.ErrTooShort
}

// postalGate requires exactly 4 digits before resolving.
func postalGate(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) < 4 {
		return "", lookup.ErrTooShort
	}
	for _, r := range trimmed {
		if r < '0' || r > '9' {
			return "", apperr.Validation("postal code must be 4 digits")
		}
	}
	if len(trimmed) > 4 {
		return "", apperr.Validation("postal code must be 4 digits")
	}
	return trimmed, nil
}

// QueryChange feeds new raw input into one field's engine.
func (s *Session) QueryChange(field, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	switch field {
	case FieldMunicipality:
		s.municipality.OnQueryChange(text)
	case FieldStreet:
		s.street.OnQueryChange(text)
	case FieldHouseNumber:
		s.houseNumber.OnQueryChange(text)
	case FieldPhone:
		s.phone.OnQueryChange(text)
	case FieldPostalCode:
		s.postalCode.OnQueryChange(text)
	default:
		return apperr.BadRequest("unknown field " + field)
	}
	return nil
}

// SelectMunicipality records a municipality choice and cascades: the street
// and house-number engines are rebuilt against the new municipality and all
// dependent selections are cleared.
func (s *Session) SelectMunicipality(id string) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	record, ok := findByID(s.municipality.Snapshot().Data, id, func(m geonorge.Municipality) string { return m.ID })
	if !ok {
		return s.selection, apperr.BadRequest("municipality is not among the presented options")
	}

	s.municipality.Select()
	s.street.Cancel()
	s.houseNumber.Cancel()
	s.street = s.newStreetEngine(record.ID)
	s.houseNumber = s.newHouseNumberEngine("", "")

	s.selection = Selection{Municipality: &record}
	return s.selection, nil
}

// SelectStreet records a street choice, clears house-number/postal state,
// and kicks off the house-number fetch for the new street.
func (s *Session) SelectStreet(id string) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	if s.selection.Municipality == nil {
		return s.selection, apperr.BadRequest("select a municipality first")
	}

	record, ok := findByID(s.street.Snapshot().Data, id, func(st geonorge.Street) string { return st.ID })
	if !ok {
		return s.selection, apperr.BadRequest("street is not among the presented options")
	}

	s.street.Select()
	s.houseNumber.Cancel()
	s.houseNumber = s.newHouseNumberEngine(s.selection.Municipality.ID, record.ID)
	// Exact-key field: resolve immediately instead of waiting for input.
	s.houseNumber.OnQueryChange("load")

	s.selection.Street = &record
	s.selection.HouseNumber = nil
	s.selection.PostalCode = ""
	s.selection.PostalArea = ""
	return s.selection, nil
}

// SelectHouseNumber records a house-number choice and derives the postal
// code and place from it.
func (s *Session) SelectHouseNumber(label string) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	if s.selection.Street == nil {
		return s.selection, apperr.BadRequest("select a street first")
	}

	record, ok := findByID(s.houseNumber.Snapshot().Data, label, func(a geonorge.Address) string { return a.Label })
	if !ok {
		return s.selection, apperr.BadRequest("house number is not among the presented options")
	}

	s.houseNumber.Select()
	s.selection.HouseNumber = &record
	s.selection.PostalCode = record.PostalCode
	s.selection.PostalArea = record.PostalArea
	return s.selection, nil
}

// FieldState returns one field's current lookup state.
func (s *Session) FieldState(field string) (FieldState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	switch field {
	case FieldMunicipality:
		return fieldState(s.municipality), nil
	case FieldStreet:
		return fieldState(s.street), nil
	case FieldHouseNumber:
		return fieldState(s.houseNumber), nil
	case FieldPhone:
		return fieldState(s.phone), nil
	case FieldPostalCode:
		return fieldState(s.postalCode), nil
	default:
		return FieldState{}, apperr.BadRequest("unknown field " + field)
	}
}

// State returns the whole form snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()

	return State{
		Selection: s.selection,
		Fields: map[string]FieldState{
			FieldMunicipality: fieldState(s.municipality),
			FieldStreet:       fieldState(s.street),
			FieldHouseNumber:  fieldState(s.houseNumber),
			FieldPhone:        fieldState(s.phone),
			FieldPostalCode:   fieldState(s.postalCode),
		},
	}
}

// Selection returns the current selections.
func (s *Session) CurrentSelection() Selection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// Close tears down every engine; in-flight completions are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.municipality.Cancel()
	s.street.Cancel()
	s.houseNumber.Cancel()
	s.phone.Cancel()
	s.postalCode.Cancel()
}

// LastSeen reports the last time this session was touched.
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func fieldState[R any](eng *lookup.Engine[R]) FieldState {
	r := eng.Snapshot()
	state := FieldState{
		Status:     r.Status,
		ErrDetail:  r.ErrDetail,
		Validation: r.Validation,
		Failures:   eng.Failures(),
	}
	if r.Data != nil {
		state.Data = r.Data
	}
	return state
}

func findByID[R any](records []R, id string, key func(R) string) (R, bool) {
	for _, r := range records {
		if key(r) == id {
			return r, true
		}
	}
	var zero R
	return zero, false
}
