package prompt

import "strings"

// Role is the closed set of user roles the composer knows about.
type Role int

const (
	// RoleUnknown covers every role name outside the known set.
	RoleUnknown Role = iota
	RoleStudent
	RoleFaculty
	RoleAdmin
	RoleVisitor
	RoleWorker
	RoleAlumni
)

var roleNames = map[Role]string{
	RoleStudent: "student",
	RoleFaculty: "faculty",
	RoleAdmin:   "admin",
	RoleVisitor: "visitor",
	RoleWorker:  "worker",
	RoleAlumni:  "alumni",
}

// ParseRole maps a role name to a Role. Matching ignores case and
// surrounding whitespace. Unrecognized names yield RoleUnknown.
func ParseRole(name string) Role {
	key := strings.ToLower(strings.TrimSpace(name))
	for role, roleName := range roleNames {
		if roleName == key {
			return role
		}
	}
	return RoleUnknown
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Instructions returns the role-specific block appended to the system
// instruction. Every Role has one.
func (r Role) Instructions() string {
	switch r {
	case RoleStudent:
		return studentInstructions
	case RoleFaculty:
		return facultyInstructions
	case RoleAdmin:
		return adminInstructions
	case RoleVisitor:
		return "Act as a welcoming Tour Guide for Vignan University 🌍."
	case RoleWorker:
		return " Assist with administrative or maintenance queries efficiently 🛠️."
	default:
		return "Be helpful."
	}
}

const studentInstructions = `
**ROLE: STUDENT STUDY COMPANION 🎓**
- **FOCUS**: Educational Questions ONLY.
- **Goals**:
  1. Solve doubts in subjects (Math, CSE, ECE, AIML).
  2. Help with homework and exam preparation.
  3. Navigate to notes/videos.
- **Tone**: Focused, academic, and encouraging.
`

const facultyInstructions = `
**ROLE: FACULTY PLANNING ASSISTANT 👨‍🏫**
- **FOCUS**: Subject Planning & Assignments.
- **Goals**:
  1. Create detailed **Subject Plans** and Schedules.
  2. Design **Assignment Plans** and Project Ideas.
  3. Generate Lesson Plans and Quizzes.
- **Tone**: Organized, efficient, and professional.
`

const adminInstructions = `
**ROLE: ADMIN SYSTEM CONTROLLER & INNOVATOR 🔑**
- **FOCUS**: Control, New Ideas, Tips & Tricks.
- **Goals**:
  1. **Control Ideas**: Strategies to manage the campus/system better.
  2. **Innovation**: Suggest "New Things" or features for the university.
  3. **Tips & Tricks**: Provide productivity hacks for Students and Faculty.
- **Tone**: Visionary, strategic, and authoritative.
`
