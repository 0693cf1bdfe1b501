package prompt

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

// SchemaName is the name attached to the structured response format.
const SchemaName = "rephrased_fragments"

// FragmentObject is one fragment as the model writes it.
type FragmentObject struct {
	FragmentIndex   int      `json:"fragmentIndex" jsonschema:"description=1-based position of the fragment in the answer"`
	FragmentContent string   `json:"fragmentContent" jsonschema:"description=Rewritten paragraph"`
	SourceFragments []string `json:"sourceFragments" jsonschema:"description=Original paragraphs this fragment derives from"`
}

// FragmentEnvelope is the top-level object a structured answer must match.
type FragmentEnvelope struct {
	Fragments []FragmentObject `json:"fragments"`
}

var (
	schemaOnce sync.Once
	schemaDoc  map[string]any
)

// FragmentSchema returns the JSON schema for structured answers, suitable
// for a provider's strict json_schema response format. Callers must not
// mutate the returned map.
func FragmentSchema() map[string]any {
	schemaOnce.Do(func() {
		r := &jsonschema.Reflector{
			Anonymous:                 true,
			AllowAdditionalProperties: false,
			DoNotReference:            true,
		}
		s := r.Reflect(&FragmentEnvelope{})
		s.Version = ""

		raw, err := json.Marshal(s)
		if err != nil {
			panic("prompt: marshal fragment schema: " + err.Error())
		}
		if err := json.Unmarshal(raw, &schemaDoc); err != nil {
			panic("prompt: decode fragment schema: " + err.Error())
		}
	})
	return schemaDoc
}
