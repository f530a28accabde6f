// Package prompt builds the system instruction sent ahead of every
// conversation.
//
// The instruction is the knowledge corpus between start and end markers,
// followed by the assistant's behavioural rules, the catalog of views the
// client can navigate to and a block specific to the user's role.
package prompt

import (
	"fmt"
	"strings"
)

// DefaultDisplayName is used when the request carries no user name.
const DefaultDisplayName = "User"

// Views lists the client views the assistant may navigate to.
var Views = []View{
	{Name: "overview", Label: "Dashboard Home"},
	{Name: "semester-notes", Label: "Course Notes"},
	{Name: "advanced-videos", Label: "Videos"},
	{Name: "advanced-learning", Label: "Tech Skills"},
	{Name: "settings", Label: "Profile"},
	{Name: "interview-qa", Label: "Interview Questions"},
}

// View is a client screen reachable through a navigation directive.
type View struct {
	Name  string
	Label string
}

// NavigateDirective formats the tag the client parses to switch views.
func NavigateDirective(view string) string {
	return "{{NAVIGATE: " + view + "}}"
}

// Persona names the assistant and the institution it serves.
type Persona struct {
	Name        string
	Institution string
}

// DefaultPersona is the persona used when none is configured.
var DefaultPersona = Persona{Name: "Vu AI", Institution: "Vignan University (VFSTR)"}

// Composer assembles system instructions. It is safe for concurrent use.
type Composer struct {
	persona Persona
	corpus  *Corpus
}

// NewComposer creates a Composer. A nil corpus behaves as an empty one.
func NewComposer(persona Persona, corpus *Corpus) *Composer {
	if persona.Name == "" {
		persona.Name = DefaultPersona.Name
	}
	if persona.Institution == "" {
		persona.Institution = DefaultPersona.Institution
	}
	return &Composer{persona: persona, corpus: corpus}
}

// Compose returns the system instruction for a role name and display name.
// It never fails: unknown roles get the generic instruction block.
func (c *Composer) Compose(roleName, displayName string) string {
	normalized := strings.ToLower(strings.TrimSpace(roleName))
	if strings.TrimSpace(displayName) == "" {
		displayName = DefaultDisplayName
	}

	knowledge := ""
	if c.corpus != nil {
		knowledge = c.corpus.Text()
	}
	if strings.TrimSpace(knowledge) == "" {
		knowledge = c.persona.Institution + " context unavailable."
	}

	var b strings.Builder
	b.WriteString("*** KNOWLEDGE BASE [START] ***\n")
	b.WriteString(knowledge)
	b.WriteString("\n*** KNOWLEDGE BASE [END] ***\n\n\n")
	b.WriteString(c.baseInstructions(strings.ToUpper(normalized), displayName))
	b.WriteString("\n")
	b.WriteString(appWorkflows())
	b.WriteString("\n")
	b.WriteString(ParseRole(normalized).Instructions())
	return b.String()
}

func (c *Composer) baseInstructions(label, displayName string) string {
	greeting := fmt.Sprintf("The user's name is '%s'. Refer to them by name occasionally to be friendly.", displayName)

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the friendly AI assistant for %s.\n\n", c.persona.Name, c.persona.Institution)
	b.WriteString("**CORE RULES:**\n")
	b.WriteString("1. **Multi-Language**: Detect user's language and respond in the SAME language (English, Telugu, Hindi, etc.).\n")
	b.WriteString("2. **Knowledge Sources (Dual Mode)**:\n")
	b.WriteString("   - **University Queries**: For questions about the university (fees, exams, campus, faculty), PRIORITIZE the provided \"Knowledge Base\" above. " +
		"If specific university info is missing, THEN say \"Check with admin office 🏛️\".\n")
	b.WriteString("   - **Educational & General Queries**: For ALL study-related topics (Coding, Math, Science, History), writing tasks, or general doubts, " +
		"USE YOUR OWN VAST KNOWLEDGE. Do not restrict yourself. You are an expert tutor.\n")
	b.WriteString("3. **Tone**: Warm, encouraging, and highly interactive. Use conversational fillers like \"That's a great question!\", " +
		"\"I'm happy to help with that!\", and emojis 🎓✨.\n")
	b.WriteString("4. **Interactive Learning**: Explain concepts using analogies. For example, if explaining 'Variables', compare them to boxes in a cupboard.\n")
	fmt.Fprintf(&b, "5. **Personalization**: %s\n", greeting)
	fmt.Fprintf(&b, "6. **Self-Awareness**: If asked \"Who am I?\" or similar, identify the user as %s (%s).\n", displayName, label)
	b.WriteString("7. **Dashboard Knowledge**: You are embedded in the \"Friendly Notebook\" dashboard.\n\n")
	fmt.Fprintf(&b, "**User Role:** %s\n", label)
	return b.String()
}

func appWorkflows() string {
	var b strings.Builder
	b.WriteString("\n**FRIENDLY NOTEBOOK APPLICATION KNOWLEDGE:**\n")
	b.WriteString("1. **Semester Notes**: Located in 'Semester Notes' view. Contains subject-wise notes.\n")
	b.WriteString("2. **Advanced Learning**: Located in 'Advanced Learning' hub. Contains 'Deep Learning', 'Web Development', etc.\n")
	b.WriteString("3. **Videos**: Located in 'Advanced Videos'. Video tutorials for subjects.\n")
	b.WriteString("4. **My Profile/Settings**: Located in 'Settings'. Change password or profile pic.\n")
	b.WriteString("5. **Ask AI**: You are the 'Ask AI' feature!\n\n")
	b.WriteString("**CLIENT ACTIONS (IMPORTANT):**\n")
	b.WriteString("If the user asks to \"go to note\", \"open videos\", \"show me settings\", or \"navigate to...\", " +
		"you MUST include a special action tag at the end of your response.\n")
	b.WriteString("Format: `" + NavigateDirective("<view_name>") + "`\n\n")
	b.WriteString("Valid Views:\n")
	for _, v := range Views {
		fmt.Fprintf(&b, "- `%s` (%s)\n", v.Name, v.Label)
	}
	b.WriteString("\nExample:\n")
	b.WriteString("User: \"Take me to my notes.\"\n")
	b.WriteString("AI: \"Sure! Heading to your semester notes now. 📂 " + NavigateDirective("semester-notes") + "\"\n")
	return b.String()
}
