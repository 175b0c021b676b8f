package rag

import (
	"fmt"
	"strings"
	"text/template"

	wl "github.com/abadojack/whatlanggo"
)

// Lang selects the template language. LangAuto picks one from the question.
type Lang string

const (
	LangPT   Lang = "pt"
	LangEN   Lang = "en"
	LangAuto Lang = "auto"
)

// Fallback phrases the model is told to answer with when the context does
// not cover the question.
const (
	FallbackPT = "Não tenho essa informação"
	FallbackEN = "I don't have this information"
)

func ParseLang(s string) (Lang, error) {
	switch l := Lang(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LangPT, nil
	case LangPT, LangEN, LangAuto:
		return l, nil
	default:
		return "", Errorf(ErrConfiguration, "lang", "unsupported language %q (use pt, en or auto)", s)
	}
}

// Fallback returns the "no information" phrase for l.
func (l Lang) Fallback() string {
	if l == LangEN {
		return FallbackEN
	}
	return FallbackPT
}

// resolve turns LangAuto into a concrete language for question.
func (l Lang) resolve(question string) Lang {
	if l != LangAuto {
		return l
	}
	return detectLang(question)
}

func detectLang(s string) Lang {
	info := wl.Detect(s)
	switch wl.LangToString(info.Lang) {
	case "Eng":
		return LangEN
	default:
		return LangPT
	}
}

type promptData struct {
	Context  string
	Question string
	Fallback string
}

// Prompt para askFromPrompt: contexto fornecido pelo chamador.
var promptTemplates = map[Lang]*template.Template{
	LangPT: mustTemplate("prompt-pt", `Para responder, utilize o conhecimento disponivel no contexto abaixo.
Caso não saiba responder, responda com '{{.Fallback}}'

Contexto:
{{.Context}}

Pergunta:
{{.Question}}
`),
	LangEN: mustTemplate("prompt-en", `To answer, use only the knowledge available in the context below.
If you don't know the answer, reply with '{{.Fallback}}'

Context:
{{.Context}}

Question:
{{.Question}}
`),
}

// Prompt para as perguntas com contexto recuperado do índice.
var retrievalTemplates = map[Lang]*template.Template{
	LangPT: mustTemplate("retrieval-pt", `Responda à pergunta do usuário baseando-se exclusivamente no seguinte contexto extraído de uma página web.
Se a informação não estiver no contexto, diga: {{.Fallback}}

Contexto:
{{.Context}}

Pergunta:
{{.Question}}
`),
	LangEN: mustTemplate("retrieval-en", `Answer the user's question based exclusively on the following context extracted from a document.
If the information is not in the context, say: {{.Fallback}}

Context:
{{.Context}}

Question:
{{.Question}}
`),
}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=error").Parse(text))
}

func render(templates map[Lang]*template.Template, lang Lang, question, contextText string) (string, error) {
	t, ok := templates[lang]
	if !ok {
		t = templates[LangPT]
		lang = LangPT
	}
	var b strings.Builder
	err := t.Execute(&b, promptData{
		Context:  strings.TrimSpace(contextText),
		Question: strings.TrimSpace(question),
		Fallback: lang.Fallback(),
	})
	if err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return b.String(), nil
}

// BuildPrompt fills the caller-context template.
func BuildPrompt(lang Lang, question, contextText string) (string, error) {
	lang = lang.resolve(question)
	return render(promptTemplates, lang, question, contextText)
}

// BuildRetrievalPrompt stuffs the retrieved segments, best first, into the
// retrieval template.
func BuildRetrievalPrompt(lang Lang, question string, hits []ScoredSegment) (string, error) {
	lang = lang.resolve(question)
	return render(retrievalTemplates, lang, question, StuffSegments(hits))
}

// StuffSegments joins segment contents with a blank line, keeping rank order.
func StuffSegments(hits []ScoredSegment) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		if c := strings.TrimSpace(h.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n\n")
}
