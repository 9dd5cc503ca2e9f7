package repository

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"

	"github.com/chilahati-archive/archive-api/internal/models"
	"github.com/chilahati-archive/archive-api/internal/taxonomy"
)

// ErrEmptyQuery is returned for blank search text. Callers answer with an
// empty result set instead of scanning the archive.
var ErrEmptyQuery = errors.New("search query is empty")

// categoryKeyExpr folds the stored category the same way taxonomy.Normalize
// does, so legacy spellings match their canonical identifier.
const categoryKeyExpr = `btrim(regexp_replace(lower(btrim(category)), '[\s_-]+', '-', 'g'), '-')`

var attributeName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchPredicate is a WHERE clause with its positional arguments.
type SearchPredicate struct {
	Where string
	Args  []interface{}
}

// BuildSearchPredicate matches published items whose title, slug, tags,
// category, textual body blocks or registry search fields contain query,
// case-insensitively. A non-nil scope restricts results to that category
// and its own text fields.
func BuildSearchPredicate(registry *taxonomy.Registry, query string, scope *taxonomy.VariantDescriptor) (SearchPredicate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchPredicate{}, ErrEmptyQuery
	}

	fields := registry.SearchFields()
	if scope != nil {
		fields = registry.TextFields(scope)
	}

	matchers := []string{
		"title ILIKE $1",
		"slug ILIKE $1",
		"EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE $1)",
		"category ILIKE $1",
		bodyBlockMatcher(),
	}
	for _, name := range fields {
		spec, ok := registry.Field(name)
		if !ok || !attributeName.MatchString(name) {
			return SearchPredicate{}, fmt.Errorf("search field %q is not a declared attribute", name)
		}
		matchers = append(matchers, attributeMatcher(spec))
	}

	args := []interface{}{"%" + likeEscaper.Replace(query) + "%"}
	where := fmt.Sprintf("status = '%s' AND (%s)", models.StatusPublished, strings.Join(matchers, " OR "))
	if scope != nil {
		args = append(args, pq.Array(scope.MatchKeys()))
		where += " AND " + categoryKeyExpr + " = ANY($2)"
	}

	return SearchPredicate{Where: where, Args: args}, nil
}

func attributeMatcher(spec taxonomy.FieldSpec) string {
	if spec.Kind == taxonomy.KindList {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(CASE WHEN jsonb_typeof(attributes->'%[1]s') = 'array' THEN attributes->'%[1]s' ELSE '[]'::jsonb END) AS val WHERE val ILIKE $1)", spec.Name)
	}
	return fmt.Sprintf("attributes->>'%s' ILIKE $1", spec.Name)
}

// bodyBlockMatcher searches the string leaves of a textual block's content,
// so structured payloads match on their prose and never on keys or JSON syntax.
func bodyBlockMatcher() string {
	return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements(body_content) AS block, "+
		"jsonb_path_query(block->'content', 'strict $.**') AS leaf "+
		"WHERE block->>'type' IN (%s) AND jsonb_typeof(leaf) = 'string' AND leaf #>> '{}' ILIKE $1)", textualBlockList())
}

func textualBlockList() string {
	quoted := make([]string, len(models.TextualBlockTypes))
	for i, bt := range models.TextualBlockTypes {
		quoted[i] = "'" + string(bt) + "'"
	}
	return strings.Join(quoted, ", ")
}
