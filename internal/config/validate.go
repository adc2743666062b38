package config

import "fmt"

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var recognizedFormats = map[string]bool{
	FormatJSON: true,
	FormatXML:  true,
	FormatHTML: true,
}

// Validate checks repository entries for structural and semantic errors.
// It returns all errors found (empty if valid).
func Validate(repos []RepoConfig) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]int)

	for i, r := range repos {
		prefix := fmt.Sprintf("repos[%d]", i)

		if r.URL == "" {
			errs = append(errs, ValidationError{Field: prefix + ".url", Message: "is required"})
		} else if r.Name == "" {
			errs = append(errs, ValidationError{
				Field:   prefix + ".url",
				Message: fmt.Sprintf("cannot derive a repository name from %q", r.URL),
			})
		}

		if r.Name != "" {
			if first, dup := seen[r.Name]; dup {
				errs = append(errs, ValidationError{
					Field:   prefix + ".url",
					Message: fmt.Sprintf("duplicate repository name %q (first at repos[%d])", r.Name, first),
				})
			} else {
				seen[r.Name] = i
			}
		}

		if r.Docker.Enabled && r.Docker.Image == "" {
			errs = append(errs, ValidationError{Field: prefix + ".docker.image", Message: "is required when docker is enabled"})
		}

		for _, f := range r.Coverage.ExportFormats {
			if !recognizedFormats[f] {
				errs = append(errs, ValidationError{
					Field:   prefix + ".coverage.export_formats",
					Message: fmt.Sprintf("unrecognized format %q", f),
				})
			}
		}
	}

	return errs
}
