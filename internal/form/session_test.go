package form

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"norskform_backend/internal/cache"
	"norskform_backend/internal/directory"
	"norskform_backend/internal/geonorge"
	"norskform_backend/internal/lookup"
	"norskform_backend/internal/postal"
	"norskform_backend/platform/logger"
)

type testLookupConfig struct {
	debounce time.Duration
	timeout  time.Duration
}

func (c testLookupConfig) GetAddressDebounce() time.Duration { return c.debounce }
func (c testLookupConfig) GetPhoneDebounce() time.Duration   { return c.debounce }
func (c testLookupConfig) GetLookupTimeout() time.Duration   { return c.timeout }
func (c testLookupConfig) GetReferenceCacheTTL() time.Duration {
	return time.Minute
}

// newTestBackends serves canned payloads for all three upstream services
// from a single httptest server.
func newTestBackends(t *testing.T) *Backends {
	t.Helper()

	mux := http.NewServeMux()

	mux.HandleFunc("/autocomplete", func(w http.ResponseWriter, r *http.Request) {
		var features []map[string]interface{}
		switch r.URL.Query().Get("layers") {
		case "municipality":
			features = append(features, feature("0301", "Oslo"), feature("1103", "Stavanger"))
		case "street":
			if r.URL.Query().Get("municipality") != "0301" {
				break
			}
			features = append(features, feature("KJG", "Karl Johans gate"))
		}
		writeJSON(w, map[string]interface{}{"features": features})
	})

	mux.HandleFunc("/addresses", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]interface{}{"features": []map[string]interface{}{
			addressFeature("1", "0154", "Oslo"),
			addressFeature("2", "0154", "Oslo"),
		}})
	})

	mux.HandleFunc("/lookup/phonenumber", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("number") != "22334455" {
			writeJSON(w, map[string]interface{}{"contacts": []interface{}{}})
			return
		}
		writeJSON(w, map[string]interface{}{"contacts": []map[string]interface{}{{
			"name": "Ola Nordmann",
			"geography": map[string]interface{}{
				"address": map[string]interface{}{
					"street":   "Karl Johans gate 1",
					"postCode": "0154",
					"postArea": "Oslo",
				},
			},
		}}})
	})

	mux.HandleFunc("/postalCode.json", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pnr") == "0154" {
			writeJSON(w, map[string]interface{}{"valid": true, "result": "Oslo"})
			return
		}
		writeJSON(w, map[string]interface{}{"valid": false, "result": ""})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	log := logger.New("development")
	return &Backends{
		Geocoder:       geonorge.New(srv.URL, "test-client", log),
		Directory:      directory.New(srv.URL, "test-key", log),
		Postal:         postal.New(srv.URL, "test.example", log),
		Municipalities: cache.NewMemory[geonorge.Municipality](time.Minute),
		Streets:        cache.NewMemory[geonorge.Street](time.Minute),
		Addresses:      cache.NewMemory[geonorge.Address](time.Minute),
		Owners:         cache.NewNull[directory.Owner](),
		Places:         cache.NewMemory[postal.Place](time.Minute),
		Lookup:         testLookupConfig{debounce: 5 * time.Millisecond, timeout: time.Second},
		Log:            log,
	}
}

func feature(id, name string) map[string]interface{} {
	return map[string]interface{}{"properties": map[string]interface{}{"id": id, "name": name}}
}

func addressFeature(number, postCode, postPlace string) map[string]interface{} {
	return map[string]interface{}{"properties": map[string]interface{}{
		"streetNumber": number,
		"postCode":     postCode,
		"postPlace":    postPlace,
	}}
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// awaitFieldStatus polls a field until it reaches want or the deadline hits.
func awaitFieldStatus(t *testing.T, s *Session, field string, want lookup.Status) FieldState {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state, err := s.FieldState(field)
		if err != nil {
			t.Fatalf("field state %s: %v", field, err)
		}
		if state.Status == want {
			return state
		}
		time.Sleep(2 * time.Millisecond)
	}
	state, _ := s.FieldState(field)
	t.Fatalf("field %s never reached %q, last status %q (err %q)", field, want, state.Status, state.ErrDetail)
	return FieldState{}
}

func TestSessionAddressFlow(t *testing.T) {
	s := NewSession("s1", newTestBackends(t))
	defer s.Close()

	if err := s.QueryChange(FieldMunicipality, "oslo"); err != nil {
		t.Fatal(err)
	}
	state := awaitFieldStatus(t, s, FieldMunicipality, lookup.StatusSuccess)
	munis, ok := state.Data.([]geonorge.Municipality)
	if !ok || len(munis) != 2 {
		t.Fatalf("expected 2 municipalities, got %#v", state.Data)
	}

	sel, err := s.SelectMunicipality("0301")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Municipality == nil || sel.Municipality.Name != "Oslo" {
		t.Fatalf("unexpected selection %+v", sel)
	}

	if err := s.QueryChange(FieldStreet, "karl"); err != nil {
		t.Fatal(err)
	}
	awaitFieldStatus(t, s, FieldStreet, lookup.StatusSuccess)

	sel, err = s.SelectStreet("KJG")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Street == nil || sel.Street.Name != "Karl Johans gate" {
		t.Fatalf("unexpected selection %+v", sel)
	}

	// House numbers resolve automatically once the street is chosen.
	state = awaitFieldStatus(t, s, FieldHouseNumber, lookup.StatusSuccess)
	addrs, ok := state.Data.([]geonorge.Address)
	if !ok || len(addrs) != 2 {
		t.Fatalf("expected 2 house numbers, got %#v", state.Data)
	}

	sel, err = s.SelectHouseNumber("2")
	if err != nil {
		t.Fatal(err)
	}
	if sel.PostalCode != "0154" || sel.PostalArea != "Oslo" {
		t.Fatalf("postal fields not derived: %+v", sel)
	}
}

func TestSessionMunicipalityCascadeResetsDependents(t *testing.T) {
	s := NewSession("s1", newTestBackends(t))
	defer s.Close()

	if err := s.QueryChange(FieldMunicipality, "oslo"); err != nil {
		t.Fatal(err)
	}
	awaitFieldStatus(t, s, FieldMunicipality, lookup.StatusSuccess)
	if _, err := s.SelectMunicipality("0301"); err != nil {
		t.Fatal(err)
	}

	if err := s.QueryChange(FieldStreet, "karl"); err != nil {
		t.Fatal(err)
	}
	awaitFieldStatus(t, s, FieldStreet, lookup.StatusSuccess)
	if _, err := s.SelectStreet("KJG"); err != nil {
		t.Fatal(err)
	}
	awaitFieldStatus(t, s, FieldHouseNumber, lookup.StatusSuccess)
	if _, err := s.SelectHouseNumber("1"); err != nil {
		t.Fatal(err)
	}

	// Re-selecting a municipality clears every dependent field.
	if err := s.QueryChange(FieldMunicipality, "stav"); err != nil {
		t.Fatal(err)
	}
	awaitFieldStatus(t, s, FieldMunicipality, lookup.StatusSuccess)
	sel, err := s.SelectMunicipality("1103")
	if err != nil {
		t.Fatal(err)
	}
	if sel.Street != nil || sel.HouseNumber != nil || sel.PostalCode != "" || sel.PostalArea != "" {
		t.Fatalf("dependent selections survived cascade: %+v", sel)
	}

	street := awaitFieldStatus(t, s, FieldStreet, lookup.StatusIdle)
	if street.Data != nil {
		t.Fatalf("street options survived cascade: %#v", street.Data)
	}
	house := awaitFieldStatus(t, s, FieldHouseNumber, lookup.StatusIdle)
	if house.Data != nil {
		t.Fatalf("house number options survived cascade: %#v", house.Data)
	}
}

func TestSessionStreetRequiresMunicipality(t *testing.T) {
	s := NewSession("s1", newTestBackends(t))
	defer s.Close()

	if err := s.QueryChange(FieldStreet, "karl"); err != nil {
		t.Fatal(err)
	}
	state := awaitFieldStatus(t, s, FieldStreet, lookup.StatusError)
	if !state.Validation {
		t.Fatalf("expected validation error, got %+v", state)
	}
}

func TestSessionSelectRejectsUnknownOption(t *testing.T) {
	s := NewSession("s1", newTestBackends(t))
	defer s.Close()

	if err := s.QueryChange(FieldMunicipality, "oslo"); err != nil {
		t.Fatal(err)
	}
	awaitFieldStatus(t, s, FieldMunicipality, lookup.StatusSuccess)

	if _, err := s.SelectMunicipality("9999"); err == nil {
		t.Fatal("expected rejection of option not in the result set")
	}
}

func TestSessionPhoneField(t *testing.T) {
	s := NewSession("s1", newTestBackends(t))
	defer s.Close()

	// Country prefix is a local validation error, no directory call.
	if err := s.QueryChange(FieldPhone, "+4722334455"); err != nil {
		t.Fatal(err)
	}
	state := awaitFieldStatus(t, s, FieldPhone, lookup.StatusError)
	if !state.Validation {
		t.Fatalf("expected validation error, got %+v", state)
	}

	// Partial input sits idle.
	if err := s.QueryChange(FieldPhone, "2233"); err != nil {
		t.Fatal(err)
	}
	awaitFieldStatus(t, s, FieldPhone, lookup.StatusIdle)

	if err := s.QueryChange(FieldPhone, "22 33 44 55"); err != nil {
		t.Fatal(err)
	}
	state = awaitFieldStatus(t, s, FieldPhone, lookup.StatusSuccess)
	owners, ok := state.Data.([]directory.Owner)
	if !ok || len(owners) != 1 || owners[0].Name != "Ola Nordmann" {
		t.Fatalf("unexpected owners %#v", state.Data)
	}
}

func TestSessionPostalField(t *testing.T) {
	s := NewSession("s1", newTestBackends(t))
	defer s.Close()

	if err := s.QueryChange(FieldPostalCode, "015"); err != nil {
		t.Fatal(err)
	}
	awaitFieldStatus(t, s, FieldPostalCode, lookup.StatusIdle)

	if err := s.QueryChange(FieldPostalCode, "01x4"); err != nil {
		t.Fatal(err)
	}
	state := awaitFieldStatus(t, s, FieldPostalCode, lookup.StatusError)
	if !state.Validation {
		t.Fatalf("expected validation error, got %+v", state)
	}

	if err := s.QueryChange(FieldPostalCode, "0154"); err != nil {
		t.Fatal(err)
	}
	state = awaitFieldStatus(t, s, FieldPostalCode, lookup.StatusSuccess)
	places, ok := state.Data.([]postal.Place)
	if !ok || len(places) != 1 || places[0].PostalArea != "Oslo" {
		t.Fatalf("unexpected places %#v", state.Data)
	}

	if err := s.QueryChange(FieldPostalCode, "9999"); err != nil {
		t.Fatal(err)
	}
	awaitFieldStatus(t, s, FieldPostalCode, lookup.StatusNotFound)
}

func TestManagerLifecycle(t *testing.T) {
	m := NewManager(newTestBackends(t), time.Minute, logger.New("development"))

	s := m.Create()
	if got, ok := m.Get(s.ID); !ok || got != s {
		t.Fatal("created session not retrievable")
	}
	if m.Count() != 1 {
		t.Fatalf("count = %d, want 1", m.Count())
	}

	m.Remove(s.ID)
	if _, ok := m.Get(s.ID); ok {
		t.Fatal("removed session still retrievable")
	}
	if m.Count() != 0 {
		t.Fatalf("count = %d, want 0", m.Count())
	}
}

func TestManagerSweepExpiresIdleSessions(t *testing.T) {
	m := NewManager(newTestBackends(t), 10*time.Millisecond, logger.New("development"))

	s := m.Create()
	time.Sleep(25 * time.Millisecond)
	m.sweep()

	if _, ok := m.Get(s.ID); ok {
		t.Fatal("idle session survived sweep")
	}

	// A touched session survives.
	s2 := m.Create()
	time.Sleep(5 * time.Millisecond)
	s2.State()
	time.Sleep(6 * time.Millisecond)
	m.sweep()
	if _, ok := m.Get(s2.ID); !ok {
		t.Fatal("active session was swept")
	}
}
