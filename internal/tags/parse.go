package tags

import (
	"html"
	"regexp"
	"strings"
)

const (
	tagDyadWrite       = "dyad-write"
	tagWriteToFile     = "write_to_file"
	tagSearchReplace   = "search_replace"
	tagRename          = "dyad-rename"
	tagDelete          = "dyad-delete"
	tagAddDependency   = "dyad-add-dependency"
	tagExecuteSQL      = "dyad-execute-sql"
	tagBackendCommand  = "dyad-run-backend-terminal-cmd"
	tagFrontendCommand = "dyad-run-frontend-terminal-cmd"
	tagGeneralCommand  = "run_terminal_cmd"
)

var tagNames = []string{
	tagDyadWrite, tagWriteToFile, tagSearchReplace, tagRename, tagDelete,
	tagAddDependency, tagExecuteSQL, tagBackendCommand, tagFrontendCommand,
	tagGeneralCommand,
}

const legacySearchReplace = "SEARCH_REPLACE:"

var (
	// openTagRe matches an opening (or self-closing) tag of the vocabulary.
	// Quoted attribute values may contain '>'.
	openTagRe = regexp.MustCompile(`(?i)<\s*(` + alternation(tagNames) +
		`)((?:\s+[\w:.-]+\s*=\s*(?:"[^"]*"|'[^']*'))*)\s*(/?)\s*>`)
	attrRe     = regexp.MustCompile(`([\w:.-]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)
	closeTagRe = buildCloseTags(tagNames)
	childRe    = map[string]*regexp.Regexp{}
)

func alternation(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = regexp.QuoteMeta(n)
	}
	return strings.Join(quoted, "|")
}

func buildCloseTags(names []string) map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(names))
	for _, n := range names {
		m[n] = regexp.MustCompile(`(?i)<\s*/\s*` + regexp.QuoteMeta(n) + `\s*>`)
	}
	return m
}

func init() {
	for _, n := range []string{"path", "file", "content", "old_string", "new_string", "command", "cwd", "description"} {
		childRe[n] = regexp.MustCompile(`(?is)<\s*` + n + `\s*>(.*?)<\s*/\s*` + n + `\s*>`)
	}
}

// element is one matched tag with its raw body.
type element struct {
	name  string
	attrs map[string]string
	body  string
}

// Parse extracts every recognized action from text. It never fails;
// malformed or unterminated tags are skipped.
func Parse(text string) Parsed {
	var p Parsed
	for _, el := range scan(text) {
		if a, ok := el.action(); ok {
			p.add(a)
		}
	}
	return p
}

func scan(text string) []element {
	var out []element
	pos := 0
	for pos < len(text) {
		loc := openTagRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		end := pos + loc[1]
		name := strings.ToLower(text[pos+loc[2] : pos+loc[3]])
		rawAttrs := ""
		if loc[4] >= 0 {
			rawAttrs = text[pos+loc[4] : pos+loc[5]]
		}
		selfClosing := loc[6] >= 0 && loc[7] > loc[6]

		el := element{name: name, attrs: parseAttrs(rawAttrs)}
		if selfClosing {
			out = append(out, el)
			pos = end
			continue
		}

		closeLoc := closeTagRe[name].FindStringIndex(text[end:])
		if closeLoc == nil {
			// Unterminated: skip the opening tag and keep scanning.
			pos = end
			continue
		}
		el.body = text[end : end+closeLoc[0]]
		out = append(out, el)
		pos = end + closeLoc[1]
	}
	return out
}

func parseAttrs(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(raw, -1) {
		val := m[2]
		if val == "" {
			val = m[3]
		}
		attrs[strings.ToLower(m[1])] = html.UnescapeString(val)
	}
	return attrs
}

// child returns the decoded text of a nested <name>..</name> element.
func (el element) child(name string) (string, bool) {
	re, ok := childRe[name]
	if !ok {
		return "", false
	}
	m := re.FindStringSubmatch(el.body)
	if m == nil {
		return "", false
	}
	return html.UnescapeString(m[1]), true
}

// field looks up an attribute, then a child element.
func (el element) field(names ...string) string {
	for _, n := range names {
		if v, ok := el.attrs[n]; ok {
			return v
		}
	}
	for _, n := range names {
		if v, ok := el.child(n); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func (el element) action() (Action, bool) {
	switch el.name {
	case tagDyadWrite:
		path := el.attrs["path"]
		if path == "" {
			return nil, false
		}
		content := writeBody(el.body)
		if strings.HasPrefix(content, legacySearchReplace) {
			parts := strings.SplitN(strings.TrimPrefix(content, legacySearchReplace), ":", 2)
			if len(parts) < 2 {
				return nil, false
			}
			return SearchReplace{Path: path, Old: parts[0], New: parts[1]}, true
		}
		return WriteFile{Path: path, Content: content, Description: el.attrs["description"]}, true

	case tagWriteToFile:
		path := el.field("path", "file")
		if path == "" {
			return nil, false
		}
		content, ok := el.child("content")
		if !ok {
			content = el.body
		}
		return WriteFile{Path: path, Content: writeBody(content), Description: el.attrs["description"]}, true

	case tagSearchReplace:
		path := el.field("file", "path")
		old, hasOld := el.attrs["old_string"]
		if !hasOld {
			old, hasOld = el.child("old_string")
		}
		replacement, hasNew := el.attrs["new_string"]
		if !hasNew {
			replacement, hasNew = el.child("new_string")
		}
		if path == "" || !hasOld || old == "" || !hasNew {
			return nil, false
		}
		return SearchReplace{Path: path, Old: old, New: replacement}, true

	case tagRename:
		from, to := el.attrs["from"], el.attrs["to"]
		if from == "" || to == "" {
			return nil, false
		}
		return RenameFile{From: from, To: to}, true

	case tagDelete:
		path := el.attrs["path"]
		if path == "" {
			return nil, false
		}
		return DeletePath{Path: path}, true

	case tagAddDependency:
		pkgs := strings.Fields(el.attrs["packages"])
		if len(pkgs) == 0 {
			return nil, false
		}
		return AddDependency{Packages: pkgs}, true

	case tagExecuteSQL:
		sql := strings.TrimSpace(stripFences(el.body))
		if sql == "" {
			return nil, false
		}
		return ExecuteSQL{SQL: sql, Description: el.attrs["description"]}, true

	case tagBackendCommand, tagFrontendCommand, tagGeneralCommand:
		body := el.body
		if c, ok := el.child("command"); ok {
			body = c
		}
		command := CleanCommand(body)
		if command == "" {
			return nil, false
		}
		scope := ScopeGeneral
		switch el.name {
		case tagBackendCommand:
			scope = ScopeBackend
		case tagFrontendCommand:
			scope = ScopeFrontend
		}
		return RunCommand{
			Scope:       scope,
			Command:     command,
			Cwd:         el.field("cwd"),
			Description: el.field("description"),
		}, true
	}
	return nil, false
}

// writeBody drops the single newline that usually follows the opening tag
// and any markdown fence around the content.
func writeBody(body string) string {
	body = strings.TrimPrefix(body, "\r\n")
	body = strings.TrimPrefix(body, "\n")
	return stripFences(body)
}

// StripTerminalCommands removes every command tag from text. Other
// elements are copied whole, so tags quoted inside a file body survive.
func StripTerminalCommands(text string) string {
	var b strings.Builder
	pos := 0
	for pos < len(text) {
		loc := openTagRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		name := strings.ToLower(text[pos+loc[2] : pos+loc[3]])
		start, end := pos+loc[0], pos+loc[1]
		selfClosing := loc[6] >= 0 && loc[7] > loc[6]
		if name != tagBackendCommand && name != tagFrontendCommand && name != tagGeneralCommand {
			if !selfClosing {
				if closeLoc := closeTagRe[name].FindStringIndex(text[end:]); closeLoc != nil {
					end += closeLoc[1]
				}
			}
			b.WriteString(text[pos:end])
			pos = end
			continue
		}
		b.WriteString(text[pos:start])
		if selfClosing {
			pos = end
			continue
		}
		closeLoc := closeTagRe[name].FindStringIndex(text[end:])
		if closeLoc == nil {
			b.WriteString(text[start:end])
			pos = end
			continue
		}
		pos = end + closeLoc[1]
	}
	b.WriteString(text[pos:])
	return b.String()
}
