package model

// SkillArea TOEIC七大题型分区（Part 1-7）
type SkillArea string

const (
	AreaPhotographs          SkillArea = "photographs"           // Part 1
	AreaQuestionResponse     SkillArea = "question_response"     // Part 2
	AreaConversations        SkillArea = "conversations"         // Part 3
	AreaTalks                SkillArea = "talks"                 // Part 4
	AreaIncompleteSentences  SkillArea = "incomplete_sentences"  // Part 5
	AreaTextCompletion       SkillArea = "text_completion"       // Part 6
	AreaReadingComprehension SkillArea = "reading_comprehension" // Part 7
)

type Section string

const (
	SectionListening Section = "listening"
	SectionReading   Section = "reading"
)

var ListeningAreas = []SkillArea{
	AreaPhotographs,
	AreaQuestionResponse,
	AreaConversations,
	AreaTalks,
}

var ReadingAreas = []SkillArea{
	AreaIncompleteSentences,
	AreaTextCompletion,
	AreaReadingComprehension,
}

var AllSkillAreas = append(append([]SkillArea{}, ListeningAreas...), ReadingAreas...)

// Section 返回技能分区所属的大题型（听力/阅读）
func (a SkillArea) Section() Section {
	for _, la := range ListeningAreas {
		if a == la {
			return SectionListening
		}
	}
	return SectionReading
}

func (a SkillArea) Valid() bool {
	for _, area := range AllSkillAreas {
		if a == area {
			return true
		}
	}
	return false
}

const (
	MinSkillLevel = 1
	MaxSkillLevel = 3
)

func ValidSkillLevel(level int) bool {
	return level >= MinSkillLevel && level <= MaxSkillLevel
}
