package cdg

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	domainagg "github.com/yungbote/cognigraph-backend/internal/domain/aggregates"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// variantRule lists the optional fields a node variant may carry.
type variantRule struct {
	strength bool
	severity bool
}

var variantRules = map[NodeType]variantRule{
	NodeConstraint: {strength: true, severity: true},
}

// ValidateNode checks a node that enters the system from outside.
func ValidateNode(n Node) error {
	const op = "cdg.validate_node"
	if err := validatorInstance().Struct(n); err != nil {
		return domainagg.Validation(op, "node %q: %s", n.ID, describeValidation(err))
	}
	if NormalizeNodeType(string(n.Type)) != n.Type {
		return domainagg.Validation(op, "node %q: unknown type %q", n.ID, n.Type)
	}
	rule := variantRules[n.Type]
	if n.Strength != "" && !rule.strength {
		return domainagg.Validation(op, "node %q: strength is not valid on %s nodes", n.ID, n.Type)
	}
	if n.Severity != "" && !rule.severity {
		return domainagg.Validation(op, "node %q: severity is not valid on %s nodes", n.ID, n.Type)
	}
	return nil
}

func ValidateEdge(e Edge) error {
	if err := validatorInstance().Struct(e); err != nil {
		return domainagg.Validation("cdg.validate_edge", "edge %s->%s: %s", e.From, e.To, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return strings.Join(parts, ", ")
}
