package session

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spigell/cv-matcher/internal/ai"
	"github.com/spigell/cv-matcher/internal/chat"
	"github.com/spigell/cv-matcher/internal/dispatch"
	"github.com/spigell/cv-matcher/internal/jobboard"
	"github.com/spigell/cv-matcher/internal/pipeline"
	"github.com/spigell/cv-matcher/internal/resume"
)

const (
	callbackModelPrefix = "model_"
	bullet              = "▫️ "
	defaultMark         = " (default)"

	msgChooseModel      = "*Please select an AI model to analyze your CV:*"
	msgUploadResume     = "Please upload your resume (PDF or DOCX)"
	msgUploadFirst      = "*Please upload your resume first.*"
	msgWrongType        = "*Please upload your CV as a PDF or DOCX file.*"
	msgAnalyzing        = "*🔍 Analyzing your CV...*"
	msgUnreadable       = "*❌ Could not read the document. Please ensure it's not password protected.*"
	msgAnalysisFailed   = "*❌ Error processing your CV. Please try again.*"
	msgInvalidLocations = "*Please enter valid locations.*"
	msgSearching        = "*🔍 Searching for matching jobs...*"
	msgNoJobs           = "*❌ No matching jobs found. Try different locations or upload an updated resume.*"
	msgBoardUnavailable = "*❌ The job board could not be reached. Upload your resume again to retry later.*"
	msgSearchFailed     = "*❌ Job search failed. Please send your locations again.*"
	msgResetDone        = "*Your previous CV and results were cleared.*\n" + msgUploadResume
	msgResultsDone      = "Search finished. Upload an updated resume to start a new search."
	msgStart            = "Send /start to choose an AI model."
	msgBusy             = "Please wait, your request is still being processed."
	msgAdminOnly        = "This command is for administrators only."
	msgSetUsage         = "Usage: /set <model|keywords|locations|skills> <value>"
)

// modelKeyboard offers the available models. The configured default model
// goes first and is marked, the user still has to pick one.
func modelKeyboard(models []ai.Model, preferred string) [][]chat.Button {
	def, err := ai.ParseModel(preferred)
	if err != nil || !slices.Contains(models, def) {
		def = ""
	}

	row := make([]chat.Button, 0, len(models))
	if def != "" {
		row = append(row, chat.Button{Text: def.Label() + defaultMark, Data: callbackModelPrefix + string(def)})
	}
	for _, m := range models {
		if m == def {
			continue
		}
		row = append(row, chat.Button{Text: m.Label(), Data: callbackModelPrefix + string(m)})
	}
	return [][]chat.Button{row}
}

func defaultModel(s *Session) string {
	if s.Config == nil {
		return ""
	}
	return s.Config.Model()
}

func selectedModel(m ai.Model) string {
	return fmt.Sprintf("*Selected %s*\n%s", chat.EscapeMarkdown(strings.ToUpper(m.Label())), msgUploadResume)
}

func list(items []string) string {
	escaped := make([]string, 0, len(items))
	for _, item := range items {
		escaped = append(escaped, chat.EscapeMarkdown(item))
	}
	return bullet + strings.Join(escaped, "\n"+bullet)
}

// FormatAnalysis renders the profile summary followed by the location prompt.
func FormatAnalysis(a *resume.Analysis, suggested []string) string {
	var b strings.Builder
	b.WriteString("*📑 CV Analysis Results*\n\n")

	var skills strings.Builder
	for _, category := range a.Categories() {
		items := a.TechnicalSkills[category]
		if len(items) == 0 {
			continue
		}
		fmt.Fprintf(&skills, "*%s:*\n%s%s\n\n", chat.EscapeMarkdown(resume.CategoryTitle(category)), bullet, chat.EscapeMarkdown(strings.Join(items, ", ")))
	}
	if skills.Len() > 0 {
		b.WriteString("*🔧 Technical Skills*\n")
		b.WriteString(skills.String())
	}

	if len(a.SoftSkills) > 0 {
		b.WriteString("*🤝 Professional Skills*\n")
		b.WriteString(list(a.SoftSkills) + "\n\n")
	}

	exp := a.Experience
	if exp.Years != "" || len(exp.Roles) > 0 || len(exp.Industries) > 0 {
		years := exp.Years
		if years == "" {
			years = jobboard.NotSpecified
		}
		fmt.Fprintf(&b, "*👨‍💼 Experience:* %s\n", chat.EscapeMarkdown(years))
		if len(exp.Roles) > 0 {
			b.WriteString("*Recent Roles:*\n" + list(exp.Roles) + "\n")
		}
		if len(exp.Industries) > 0 {
			b.WriteString("*Industries:*\n" + list(exp.Industries) + "\n")
		}
		b.WriteString("\n")
	}

	edu := a.Education
	if edu.Level != "" || edu.Field != "" {
		parts := make([]string, 0, 2)
		for _, part := range []string{edu.Level, edu.Field} {
			if part != "" {
				parts = append(parts, chat.EscapeMarkdown(part))
			}
		}
		fmt.Fprintf(&b, "*🎓 Education:* %s\n", strings.Join(parts, " in "))
		if len(edu.Institutions) > 0 {
			b.WriteString(list(edu.Institutions) + "\n")
		}
		b.WriteString("\n")
	}

	if len(a.Certifications) > 0 {
		b.WriteString("*📜 Certifications:*\n" + list(a.Certifications) + "\n\n")
	}

	b.WriteString(locationsPrompt(suggested))
	return b.String()
}

func locationsPrompt(suggested []string) string {
	example := "London, Manchester, Remote"
	if len(suggested) > 0 {
		example = strings.Join(suggested, ", ")
	}
	return "*🌍 Please enter your preferred locations (comma-separated):*\n_Example: " + chat.EscapeMarkdown(example) + "_"
}

// FormatNotification renders the message sent for one matching listing.
func FormatNotification(n dispatch.Notification) string {
	l := n.Listing
	var b strings.Builder
	fmt.Fprintf(&b, "*🎯 %d%% match: %s*\n", n.Score, chat.EscapeMarkdown(l.Title))
	writeListing(&b, l)
	return b.String()
}

func writeListing(b *strings.Builder, l *jobboard.Listing) {
	fmt.Fprintf(b, "🏢 %s\n", chat.EscapeMarkdown(l.Company))
	fmt.Fprintf(b, "📍 %s\n", chat.EscapeMarkdown(l.Location))
	fmt.Fprintf(b, "💰 %s\n", chat.EscapeMarkdown(l.Salary))
	fmt.Fprintf(b, "🔗 [Apply Here](%s)\n", l.Link)
}

// FormatResults renders the batch summary.
func FormatResults(r *pipeline.Result) string {
	var b strings.Builder

	if len(r.Matches) == 0 {
		b.WriteString(msgNoJobs)
	} else {
		b.WriteString("*🎯 Matching Jobs*\n\n")
		for _, m := range r.Matches {
			fmt.Fprintf(&b, "*%s* (%d%%)\n", chat.EscapeMarkdown(m.Listing.Title), m.Score)
			writeListing(&b, m.Listing)
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\n_Found %d, skipped cards %d, excluded %d, unscored %d, notified %d, applied %d_",
		r.Report.Found, r.Report.SkippedCards, r.Excluded, r.Unscored, r.Notified, r.Applied)

	return b.String()
}

func guidance(s *Session, models []ai.Model) chat.Reply {
	switch s.State {
	case StateIdle:
		return chat.Reply{Text: msgStart}
	case StateAwaitingModel:
		return chat.Reply{Text: msgChooseModel, Markdown: true, Buttons: modelKeyboard(models, defaultModel(s))}
	case StateAwaitingDocument:
		return chat.Reply{Text: msgUploadFirst, Markdown: true}
	case StateAwaitingLocations:
		return chat.Reply{Text: locationsPrompt(s.Config.Locations()), Markdown: true}
	case StateResults:
		return chat.Reply{Text: msgResultsDone}
	default:
		return chat.Reply{Text: msgBusy}
	}
}
