package models

// The profile field catalog below is the single source for three views that
// must not diverge: the migration DDL, the profile store's column handling,
// and the tool schemas published to the AI provider.

type FieldKind string

const (
	FieldString  FieldKind = "STRING"
	FieldInteger FieldKind = "INTEGER"
	FieldNumber  FieldKind = "NUMBER"
)

// Field describes one mutable column of a profile sub-record.
type Field struct {
	Name     string
	Kind     FieldKind
	Desc     string
	Required bool
	Enum     []string
}

// RecordSpec binds one tool to one profile sub-record: the tool name the
// provider invokes, the storage table, and the HTTP path of the matching
// CRUD endpoint.
type RecordSpec struct {
	Tool   string
	Table  string
	Path   string
	Desc   string
	Fields []Field
}

// FieldByName returns the field definition, or nil for unknown names.
func (r RecordSpec) FieldByName(name string) *Field {
	for i := range r.Fields {
		if r.Fields[i].Name == name {
			return &r.Fields[i]
		}
	}
	return nil
}

// ClassificationField is the psychological-profile column the test flow
// writes its concluding result to.
const ClassificationField = "classification"

// ProfileRecords lists every one-to-one sub-record, in the order the
// context summary presents them.
var ProfileRecords = []RecordSpec{
	{
		Tool:  "update_user_profile_details",
		Table: "profile_details",
		Path:  "/profile/",
		Desc:  "Update the user's basic profile details such as name, birth date and a short bio.",
		Fields: []Field{
			{Name: "first_name", Kind: FieldString, Desc: "Given name."},
			{Name: "last_name", Kind: FieldString, Desc: "Family name."},
			{Name: "birth_date", Kind: FieldString, Desc: "Date of birth, YYYY-MM-DD."},
			{Name: "gender", Kind: FieldString, Desc: "Gender.", Enum: []string{"male", "female", "other"}},
			{Name: "bio", Kind: FieldString, Desc: "Short free-form biography."},
		},
	},
	{
		Tool:  "update_health_record",
		Table: "health_records",
		Path:  "/health-record/",
		Desc:  "Update the user's health record with any facts they share about their body or health.",
		Fields: []Field{
			{Name: "height_cm", Kind: FieldNumber, Desc: "Height in centimeters."},
			{Name: "weight_kg", Kind: FieldNumber, Desc: "Weight in kilograms."},
			{Name: "blood_type", Kind: FieldString, Desc: "Blood type.", Enum: []string{"A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-"}},
			{Name: "medical_conditions", Kind: FieldString, Desc: "Known medical conditions, comma separated."},
			{Name: "medications", Kind: FieldString, Desc: "Current medications, comma separated."},
			{Name: "average_sleep_hours", Kind: FieldNumber, Desc: "Average nightly sleep in hours."},
		},
	},
	{
		Tool:  "update_psychological_profile",
		Table: "psychological_profiles",
		Path:  "/psychological-profile/",
		Desc:  "Update the user's psychological profile with personality and mood observations.",
		Fields: []Field{
			{Name: "personality_type", Kind: FieldString, Desc: "Personality type label, e.g. MBTI code."},
			{Name: "stress_level", Kind: FieldString, Desc: "Current stress level.", Enum: []string{"low", "moderate", "high"}},
			{Name: "dominant_mood", Kind: FieldString, Desc: "Dominant mood lately."},
			{Name: ClassificationField, Kind: FieldString, Desc: "Concluding classification of a psychological test."},
		},
	},
	{
		Tool:  "update_career_education",
		Table: "career_educations",
		Path:  "/career-education/",
		Desc:  "Update the user's career and education information.",
		Fields: []Field{
			{Name: "job_title", Kind: FieldString, Desc: "Current job title."},
			{Name: "employer", Kind: FieldString, Desc: "Current employer or company."},
			{Name: "education_level", Kind: FieldString, Desc: "Highest education level.", Enum: []string{"none", "high_school", "bachelor", "master", "doctorate"}},
			{Name: "field_of_study", Kind: FieldString, Desc: "Field of study or specialization."},
		},
	},
	{
		Tool:  "update_financial_info",
		Table: "financial_infos",
		Path:  "/financial-info/",
		Desc:  "Update the user's financial information such as income, savings and debt.",
		Fields: []Field{
			{Name: "monthly_income", Kind: FieldNumber, Desc: "Monthly income."},
			{Name: "savings", Kind: FieldNumber, Desc: "Total savings."},
			{Name: "total_debt", Kind: FieldNumber, Desc: "Total outstanding debt."},
			{Name: "risk_tolerance", Kind: FieldString, Desc: "Investment risk tolerance.", Enum: []string{"low", "medium", "high"}},
		},
	},
	{
		Tool:  "update_social_relationship",
		Table: "social_relationships",
		Path:  "/social-relationship/",
		Desc:  "Update facts about the user's social life and relationships.",
		Fields: []Field{
			{Name: "marital_status", Kind: FieldString, Desc: "Marital status.", Enum: []string{"single", "married", "divorced", "widowed"}},
			{Name: "children_count", Kind: FieldInteger, Desc: "Number of children."},
			{Name: "close_friends_count", Kind: FieldInteger, Desc: "Number of close friends."},
			{Name: "social_activity", Kind: FieldString, Desc: "Typical social activity or frequency."},
		},
	},
	{
		Tool:  "update_preference_interest",
		Table: "preference_interests",
		Path:  "/preferences-interests/",
		Desc:  "Update the user's preferences and interests.",
		Fields: []Field{
			{Name: "hobbies", Kind: FieldString, Desc: "Hobbies, comma separated."},
			{Name: "favorite_topics", Kind: FieldString, Desc: "Topics the user likes to talk about."},
			{Name: "dietary_preference", Kind: FieldString, Desc: "Dietary preference, e.g. vegetarian."},
			{Name: "music_taste", Kind: FieldString, Desc: "Preferred music genres."},
		},
	},
	{
		Tool:  "update_environmental_context",
		Table: "environmental_contexts",
		Path:  "/environmental-context/",
		Desc:  "Update the user's living environment and location context.",
		Fields: []Field{
			{Name: "city", Kind: FieldString, Desc: "City of residence."},
			{Name: "country", Kind: FieldString, Desc: "Country of residence."},
			{Name: "living_situation", Kind: FieldString, Desc: "Living situation.", Enum: []string{"alone", "with_family", "with_roommates", "other"}},
			{Name: "climate", Kind: FieldString, Desc: "Local climate description."},
		},
	},
	{
		Tool:  "update_real_time_data",
		Table: "real_time_data",
		Path:  "/real-time-data/",
		Desc:  "Update short-lived facts about what the user is doing right now.",
		Fields: []Field{
			{Name: "current_location", Kind: FieldString, Desc: "Where the user currently is."},
			{Name: "current_activity", Kind: FieldString, Desc: "What the user is currently doing."},
			{Name: "energy_level", Kind: FieldString, Desc: "Current energy level.", Enum: []string{"low", "medium", "high"}},
		},
	},
	{
		Tool:  "update_feedback_learning",
		Table: "feedback_learnings",
		Path:  "/feedback-learning/",
		Desc:  "Record how the user prefers the assistant to communicate.",
		Fields: []Field{
			{Name: "communication_style", Kind: FieldString, Desc: "Preferred communication style.", Enum: []string{"formal", "casual", "friendly", "direct"}},
			{Name: "preferred_tone", Kind: FieldString, Desc: "Preferred tone of replies."},
			{Name: "feedback_note", Kind: FieldString, Desc: "Free-form feedback about past replies."},
		},
	},
}

// GoalRecord is the one one-to-many collection: each create_goal call
// inserts a new row instead of patching an existing one.
var GoalRecord = RecordSpec{
	Tool:  "create_goal",
	Table: "goals",
	Path:  "/goals/",
	Desc:  "Create a new personal goal for the user.",
	Fields: []Field{
		{Name: "title", Kind: FieldString, Desc: "Short goal title.", Required: true},
		{Name: "description", Kind: FieldString, Desc: "Longer goal description."},
		{Name: "category", Kind: FieldString, Desc: "Goal category.", Enum: []string{"health", "career", "financial", "personal", "social"}},
		{Name: "target_date", Kind: FieldString, Desc: "Target completion date, YYYY-MM-DD."},
		{Name: "status", Kind: FieldString, Desc: "Goal status.", Enum: []string{"active", "completed", "abandoned"}},
	},
}

// RecordByTool resolves a tool name to its sub-record spec. The second
// return is false for names outside the closed set.
func RecordByTool(tool string) (RecordSpec, bool) {
	if tool == GoalRecord.Tool {
		return GoalRecord, true
	}
	for _, r := range ProfileRecords {
		if r.Tool == tool {
			return r, true
		}
	}
	return RecordSpec{}, false
}
