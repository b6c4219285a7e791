package tags

import (
	"fmt"
	"html"
	"strings"
)

// Serialize renders actions as canonical markup. Parsing the result yields
// the same actions in the same order, provided no content embeds its own
// closing tag.
func Serialize(actions []Action) string {
	var b strings.Builder
	for i, a := range actions {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(Markup(a))
	}
	return b.String()
}

// Markup renders a single action.
func Markup(a Action) string {
	switch v := a.(type) {
	case WriteFile:
		return fmt.Sprintf("<%s%s>\n%s</%s>", tagDyadWrite,
			attrs("path", v.Path, "description", v.Description), v.Content, tagDyadWrite)
	case SearchReplace:
		return fmt.Sprintf(`<%s file="%s" old_string="%s" new_string="%s" />`, tagSearchReplace,
			html.EscapeString(v.Path), html.EscapeString(v.Old), html.EscapeString(v.New))
	case RenameFile:
		return fmt.Sprintf("<%s%s></%s>", tagRename, attrs("from", v.From, "to", v.To), tagRename)
	case DeletePath:
		return fmt.Sprintf("<%s%s></%s>", tagDelete, attrs("path", v.Path), tagDelete)
	case AddDependency:
		return fmt.Sprintf("<%s%s></%s>", tagAddDependency,
			attrs("packages", strings.Join(v.Packages, " ")), tagAddDependency)
	case ExecuteSQL:
		return fmt.Sprintf("<%s%s>\n%s\n</%s>", tagExecuteSQL,
			attrs("description", v.Description), v.SQL, tagExecuteSQL)
	case RunCommand:
		name := tagGeneralCommand
		switch v.Scope {
		case ScopeBackend:
			name = tagBackendCommand
		case ScopeFrontend:
			name = tagFrontendCommand
		}
		return fmt.Sprintf("<%s%s>%s</%s>", name,
			attrs("cwd", v.Cwd, "description", v.Description), v.Command, name)
	}
	return ""
}

// attrs formats key/value pairs, dropping optional empty values. The first
// pair is always written.
func attrs(kv ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(kv); i += 2 {
		if i > 0 && kv[i+1] == "" {
			continue
		}
		fmt.Fprintf(&b, ` %s="%s"`, kv[i], html.EscapeString(kv[i+1]))
	}
	return b.String()
}
