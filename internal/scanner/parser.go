package scanner

// parserRegistry dispatches files to language parsers. Later
// registrations win on their declared languages.
type parserRegistry struct {
	byLanguage map[Language]*LanguageParser
}

func newParserRegistry(extra []LanguageParser) *parserRegistry {
	r := &parserRegistry{byLanguage: make(map[Language]*LanguageParser)}
	builtins := []LanguageParser{
		{Languages: []Language{LangTypeScript, LangJavaScript}, Parse: parseTypedJS},
		{Languages: []Language{LangPython}, Parse: parsePython},
		{Languages: []Language{LangGo}, Parse: parseGo},
		{Languages: []Language{LangGeneric}, Parse: parseGeneric},
	}
	for i := range builtins {
		r.register(&builtins[i])
	}
	for i := range extra {
		r.register(&extra[i])
	}
	return r
}

func (r *parserRegistry) register(p *LanguageParser) {
	for _, lang := range p.Languages {
		r.byLanguage[lang] = p
	}
}

// parse runs the file through its language parser and prepends the file
// artifact every parsed file yields. A parser error skips the file.
func (r *parserRegistry) parse(f *FileInfo) ([]RawArtifact, error) {
	fileArtifact := RawArtifact{
		Kind:     KindFile,
		Name:     f.RelativePath,
		FilePath: f.RelativePath,
		Language: f.Language,
		Meta: map[string]any{
			"size": f.Size,
			"hash": f.Hash,
		},
	}
	p, ok := r.byLanguage[f.Language]
	if !ok {
		return []RawArtifact{fileArtifact}, nil
	}
	artifacts, err := p.Parse(f)
	if err != nil {
		return nil, err
	}
	// Parsers attach file-level refs (imports and the like) by emitting a
	// file-kind artifact for the same path; merge it into the canonical one.
	out := []RawArtifact{fileArtifact}
	for _, a := range artifacts {
		if a.Kind == KindFile && a.FilePath == f.RelativePath {
			out[0].Refs = append(out[0].Refs, a.Refs...)
			for k, v := range a.Meta {
				out[0].Meta[k] = v
			}
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
