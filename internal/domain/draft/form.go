package draft

import "time"

// NewPatient is the embedded identity sub-record carried only by drafts for
// patients named in this session but not yet persisted.
type NewPatient struct {
	Name        string `json:"name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Contact     string `json:"contact"`
}

// Complete reports whether every identity field required for persistence is
// present.
func (p NewPatient) Complete() bool {
	return p.Name != "" && p.DateOfBirth != "" && p.Gender != "" && p.Contact != ""
}

// History holds the medical-history fields.
type History struct {
	PastMedical   string `json:"past_medical,omitempty"`
	DrugHistory   string `json:"drug_history,omitempty"`
	FamilyHistory string `json:"family_history,omitempty"`
	SocialHistory string `json:"social_history,omitempty"`
	Allergies     string `json:"allergies,omitempty"`
}

// Examination holds the examination findings.
type Examination struct {
	General         string `json:"general,omitempty"`
	Cardiovascular  string `json:"cardiovascular,omitempty"`
	Respiratory     string `json:"respiratory,omitempty"`
	Abdomen         string `json:"abdomen,omitempty"`
	Neurological    string `json:"neurological,omitempty"`
	Musculoskeletal string `json:"musculoskeletal,omitempty"`
	Skin            string `json:"skin,omitempty"`
	ENT             string `json:"ent,omitempty"`
}

// LabPair is one dynamic name/value lab result.
type LabPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Labs holds the named lab-result fields plus the dynamic custom list.
type Labs struct {
	Hemoglobin       string `json:"hemoglobin,omitempty"`
	WBC              string `json:"wbc,omitempty"`
	Platelets        string `json:"platelets,omitempty"`
	ESR              string `json:"esr,omitempty"`
	CRP              string `json:"crp,omitempty"`
	FastingGlucose   string `json:"fasting_glucose,omitempty"`
	RandomGlucose    string `json:"random_glucose,omitempty"`
	HbA1c            string `json:"hba1c,omitempty"`
	Urea             string `json:"urea,omitempty"`
	Creatinine       string `json:"creatinine,omitempty"`
	Sodium           string `json:"sodium,omitempty"`
	Potassium        string `json:"potassium,omitempty"`
	Chloride         string `json:"chloride,omitempty"`
	Calcium          string `json:"calcium,omitempty"`
	Phosphate        string `json:"phosphate,omitempty"`
	Magnesium        string `json:"magnesium,omitempty"`
	TotalCholesterol string `json:"total_cholesterol,omitempty"`
	LDL              string `json:"ldl,omitempty"`
	HDL              string `json:"hdl,omitempty"`
	Triglycerides    string `json:"triglycerides,omitempty"`
	ALT              string `json:"alt,omitempty"`
	AST              string `json:"ast,omitempty"`
	ALP              string `json:"alp,omitempty"`
	Bilirubin        string `json:"bilirubin,omitempty"`
	TotalProtein     string `json:"total_protein,omitempty"`
	Albumin          string `json:"albumin,omitempty"`
	TSH              string `json:"tsh,omitempty"`
	T3               string `json:"t3,omitempty"`
	T4               string `json:"t4,omitempty"`
	UricAcid         string `json:"uric_acid,omitempty"`

	Custom []LabPair `json:"custom,omitempty"`
}

// Investigations holds the ordered-investigation fields.
type Investigations struct {
	XRay       string `json:"xray,omitempty"`
	Ultrasound string `json:"ultrasound,omitempty"`
	CT         string `json:"ct,omitempty"`
	MRI        string `json:"mri,omitempty"`
	ECG        string `json:"ecg,omitempty"`
	Echo       string `json:"echo,omitempty"`
}

// Procedure is one appointment procedure with its search term.
type Procedure struct {
	ID         string  `json:"id,omitempty"`
	Name       string  `json:"name"`
	Charge     float64 `json:"charge"`
	SearchTerm string  `json:"search_term,omitempty"`
}

// Form is the complete unsaved editing state for one patient.
type Form struct {
	InventoryMedicines []Medicine     `json:"inventory_medicines,omitempty"`
	WrittenMedicines   []Medicine     `json:"written_medicines,omitempty"`
	Notes              string         `json:"notes,omitempty"`
	Complaint          string         `json:"complaint,omitempty"`
	History            History        `json:"history"`
	Examination        Examination    `json:"examination"`
	Labs               Labs           `json:"labs"`
	Investigations     Investigations `json:"investigations"`
	Diagnosis          string         `json:"diagnosis,omitempty"`
	Charge             float64        `json:"charge,omitempty"`
	Tests              []string       `json:"tests,omitempty"`
	NextVisit          *time.Time     `json:"next_visit,omitempty"`
	Procedures         []Procedure    `json:"procedures,omitempty"`

	// NewPatient is set only while drafting for a not-yet-persisted patient.
	NewPatient *NewPatient `json:"new_patient,omitempty"`
}

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{}
}

// Clone returns a deep copy. Stored snapshots and restored drafts never
// share slices with the live form, so edits after a save cannot leak into a
// stored slot.
func (f *Form) Clone() *Form {
	if f == nil {
		return nil
	}
	c := *f
	c.InventoryMedicines = append([]Medicine(nil), f.InventoryMedicines...)
	c.WrittenMedicines = append([]Medicine(nil), f.WrittenMedicines...)
	c.Tests = append([]string(nil), f.Tests...)
	c.Procedures = append([]Procedure(nil), f.Procedures...)
	c.Labs.Custom = append([]LabPair(nil), f.Labs.Custom...)
	if f.NextVisit != nil {
		t := *f.NextVisit
		c.NextVisit = &t
	}
	if f.NewPatient != nil {
		p := *f.NewPatient
		c.NewPatient = &p
	}
	return &c
}

// Medicine returns a pointer into the form's line for the given ID, or nil.
func (f *Form) Medicine(id string) *Medicine {
	for i := range f.InventoryMedicines {
		if f.InventoryMedicines[i].ID == id {
			return &f.InventoryMedicines[i]
		}
	}
	for i := range f.WrittenMedicines {
		if f.WrittenMedicines[i].ID == id {
			return &f.WrittenMedicines[i]
		}
	}
	return nil
}

// RemoveMedicine deletes the line with the given ID from either list.
func (f *Form) RemoveMedicine(id string) bool {
	for i := range f.InventoryMedicines {
		if f.InventoryMedicines[i].ID == id {
			f.InventoryMedicines = append(f.InventoryMedicines[:i], f.InventoryMedicines[i+1:]...)
			return true
		}
	}
	for i := range f.WrittenMedicines {
		if f.WrittenMedicines[i].ID == id {
			f.WrittenMedicines = append(f.WrittenMedicines[:i], f.WrittenMedicines[i+1:]...)
			return true
		}
	}
	return false
}
