package model

import (
	"fmt"
	"strings"
)

// Language identifiers as used in ExecutionRequests and File records.
const (
	LangJava       = "java"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangC          = "c"
	LangCPP        = "cpp"
	LangCSharp     = "csharp"
	LangPlain      = "plaintext"
)

// extToLanguage maps file extensions to logical language identifiers.
var extToLanguage = map[string]string{
	"java": LangJava,
	"py":   LangPython,
	"js":   LangJavaScript,
	"c":    LangC,
	"cpp":  LangCPP,
	"cc":   LangCPP,
	"cs":   LangCSharp,
}

// multiFileLanguages marks compiled languages whose runs need the full
// workspace file set. Scripting languages run from the active file alone.
var multiFileLanguages = map[string]bool{
	LangJava:   true,
	LangC:      true,
	LangCPP:    true,
	LangCSharp: true,
}

// LanguageForFileName derives the logical language from a file name's
// extension, falling back to plaintext for unknown extensions.
func LanguageForFileName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 || idx == len(name)-1 {
		return LangPlain
	}
	ext := strings.ToLower(name[idx+1:])
	if lang, ok := extToLanguage[ext]; ok {
		return lang
	}
	return LangPlain
}

// NeedsAllFiles reports whether a run in the given language must include
// every workspace file rather than only the active one.
func NeedsAllFiles(language string) bool {
	return multiFileLanguages[language]
}

// StarterTemplate returns the seed content for a newly created file. These
// are data, not executable logic; unknown languages get a bare comment.
func StarterTemplate(language, fileName string) string {
	switch language {
	case LangJava:
		className := strings.TrimSuffix(fileName, ".java")
		return fmt.Sprintf("public class %s {\n    public static void main(String[] args) {\n        System.out.println(\"Hello from %s\");\n    }\n}\n", className, className)
	case LangPython:
		return "print(\"Hello from Python\")\n"
	case LangJavaScript:
		return "console.log(\"Hello from JavaScript\");\n"
	case LangC:
		return "#include <stdio.h>\n\nint main() {\n    printf(\"Hello from C\\n\");\n    return 0;\n}\n"
	case LangCPP:
		return "#include <iostream>\n\nint main() {\n    std::cout << \"Hello from C++\" << std::endl;\n    return 0;\n}\n"
	case LangCSharp:
		return "using System;\n\nclass Program {\n    static void Main() {\n        Console.WriteLine(\"Hello from C#\");\n    }\n}\n"
	default:
		return ""
	}
}
