package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/rego"
	"github.com/yairfalse/kinos/telemetry"
	"github.com/yairfalse/kinos/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Guard evaluates rego hold policies against deletion candidates. A held
// snapshot is kept regardless of what the retention engine decided.
//
// Policies live in the `kinos` namespace and declare two rules:
//
//	package kinos
//	hold if { ... }
//	reason := "why" if { hold }
//
// No loaded policies means nothing is ever held.
type Guard struct {
	logger  *telemetry.Logger
	tracer  trace.Tracer
	queries map[string]rego.PreparedEvalQuery
}

// GuardInput is the input document for hold policy evaluation
type GuardInput struct {
	Snapshot types.Snapshot `json:"snapshot"`
	AgeDays  float64        `json:"age_days"`
	Now      time.Time      `json:"now"`
}

// Hold is the outcome of checking one snapshot against the loaded policies
type Hold struct {
	Held   bool
	Policy string
	Reason string
}

// NewGuard creates a guard with no policies loaded
func NewGuard() *Guard {
	return &Guard{
		logger:  telemetry.NewLogger("deletion-guard"),
		tracer:  otel.Tracer("deletion-guard"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// Empty reports whether any policies are loaded
func (g *Guard) Empty() bool {
	return len(g.queries) == 0
}

// LoadPolicy compiles a rego policy. Compile failures are fatal to guard
// construction; a policy that cannot compile must not silently allow
// deletions it was written to block.
func (g *Guard) LoadPolicy(ctx context.Context, name string, regoCode string) error {
	ctx, span := g.tracer.Start(ctx, "guard.load_policy",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.kinos"),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", name, err)
	}

	g.queries[name] = prepared

	g.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Msg("hold policy loaded")

	return nil
}

// LoadDir loads every .rego file under dir
func (g *Guard) LoadDir(ctx context.Context, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("policy directory does not exist: %s", dir)
	}

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !strings.HasSuffix(path, ".rego") {
			return nil
		}

		content, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("failed to read policy file %s: %w", path, err)
		}

		name := strings.TrimSuffix(filepath.Base(path), ".rego")
		return g.LoadPolicy(ctx, name, string(content))
	})
}

// Check evaluates every loaded policy against the input; the first hold
// wins. Evaluation errors fail open: the snapshot is not held, and the
// error is logged.
func (g *Guard) Check(ctx context.Context, input GuardInput) Hold {
	ctx, span := g.tracer.Start(ctx, "guard.check",
		trace.WithAttributes(attribute.String("snapshot.id", input.Snapshot.ID)))
	defer span.End()

	for name, query := range g.queries {
		results, err := query.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			g.logger.WithContext(ctx).Warn().
				Err(err).
				Str("policy_name", name).
				Str("snapshot_id", input.Snapshot.ID).
				Msg("hold policy evaluation failed, not holding")
			continue
		}

		if held, reason := parseHold(results); held {
			g.logger.WithContext(ctx).Info().
				Str("policy_name", name).
				Str("snapshot_id", input.Snapshot.ID).
				Str("reason", reason).
				Msg("snapshot held by policy")
			return Hold{Held: true, Policy: name, Reason: reason}
		}
	}

	return Hold{}
}

// parseHold walks the evaluated document for hold/reason rules. Policies
// in a subpackage of kinos are checked one level deep.
func parseHold(results rego.ResultSet) (bool, string) {
	for _, res := range results {
		if len(res.Expressions) == 0 {
			continue
		}

		doc, ok := res.Expressions[0].Value.(map[string]interface{})
		if !ok {
			continue
		}

		if held, reason := holdFromDoc(doc); held {
			return true, reason
		}

		for _, nested := range doc {
			if sub, ok := nested.(map[string]interface{}); ok {
				if held, reason := holdFromDoc(sub); held {
					return true, reason
				}
			}
		}
	}

	return false, ""
}

func holdFromDoc(doc map[string]interface{}) (bool, string) {
	held, _ := doc["hold"].(bool)
	if !held {
		return false, ""
	}
	reason, _ := doc["reason"].(string)
	return true, reason
}
