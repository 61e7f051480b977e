package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stejskal/web-predator/internal/adapters/api"
	"github.com/stejskal/web-predator/internal/adapters/rpcjson"
	"github.com/stejskal/web-predator/internal/config"
	"github.com/stejskal/web-predator/internal/explorer"
	"go.uber.org/zap"
)

type sessionClient interface {
	call(ctx context.Context, method string, params any, out any) error
}

// newSessionClient connects to the session daemon for the uds transport.
// For http it loads a fresh in-process session against the backend, so
// state lasts for this invocation only.
func newSessionClient(ctx context.Context, cfg config.Config, log *zap.Logger) (sessionClient, error) {
	if cfg.Transport == config.TransportUDS {
		return newRPCClient(cfg.Socket, cfg.Timeout), nil
	}
	backend := api.New(cfg.Server, cfg.Timeout, api.WithLogger(log.Named("api")))
	session := explorer.NewSession(backend, explorer.WithLogger(log))
	if err := session.Load(ctx); err != nil {
		return nil, err
	}
	return &localClient{handler: rpcjson.NewHandler(session, log)}, nil
}

func doEntitiesList(ctx context.Context, c sessionClient, out any) error {
	return c.call(ctx, "entities.list", nil, out)
}

func doEntitiesRefresh(ctx context.Context, c sessionClient, out any) error {
	return c.call(ctx, "entities.refresh", nil, out)
}

func doSchemaTargets(ctx context.Context, c sessionClient, entityType string, out any) error {
	return c.call(ctx, "schema.targets", map[string]any{"type": entityType}, out)
}

func doSchemaCheck(ctx context.Context, c sessionClient, from, to string, out any) error {
	return c.call(ctx, "schema.check", map[string]any{"from": from, "to": to}, out)
}

func doSchemaTypes(ctx context.Context, c sessionClient, out any) error {
	return c.call(ctx, "schema.types", nil, out)
}

func doTreeExpand(ctx context.Context, c sessionClient, id uint, out any) error {
	return c.call(ctx, "tree.expand", map[string]any{"id": id}, out)
}

func doTreeNested(ctx context.Context, c sessionClient, parentID, id uint, out any) error {
	return c.call(ctx, "tree.nested", map[string]any{"parent_id": parentID, "id": id}, out)
}

func doTreeShow(ctx context.Context, c sessionClient, out any) error {
	return c.call(ctx, "tree.show", nil, out)
}

func doTreeClear(ctx context.Context, c sessionClient) error {
	return c.call(ctx, "tree.clear", nil, nil)
}

func doRelationshipAdd(ctx context.Context, c sessionClient, from, to uint) error {
	return c.call(ctx, "relationships.create", map[string]any{"from": from, "to": to}, nil)
}

func doRelationshipRemove(ctx context.Context, c sessionClient, from, to uint) error {
	return c.call(ctx, "relationships.delete", map[string]any{"from": from, "to": to}, nil)
}

func doCreate(ctx context.Context, c sessionClient, params rpcjson.SubmitParams, out *explorer.WorkflowStatus) error {
	return c.call(ctx, "creation.submit", params, out)
}

func doResolve(ctx context.Context, c sessionClient, d explorer.Decision, out *explorer.WorkflowStatus) error {
	return c.call(ctx, "creation.resolve", d, out)
}

func doCreationStatus(ctx context.Context, c sessionClient, out *explorer.WorkflowStatus) error {
	return c.call(ctx, "creation.status", nil, out)
}

func doSearchCreate(ctx context.Context, c sessionClient, name string, out *explorer.WorkflowStatus) error {
	return c.call(ctx, "creation.search_create", map[string]any{"name": name}, out)
}

func doBrowse(ctx context.Context, c sessionClient, entityType string, query *string, out any) error {
	params := map[string]any{"type": entityType}
	if query != nil {
		params["query"] = *query
	}
	return c.call(ctx, "browse.list", params, out)
}

// parseDecision reads cancel, continue or pick=<id>.
func parseDecision(input string) (explorer.Decision, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == string(explorer.DecisionCancel):
		return explorer.Decision{Kind: explorer.DecisionCancel}, nil
	case input == string(explorer.DecisionContinue):
		return explorer.Decision{Kind: explorer.DecisionContinue}, nil
	case strings.HasPrefix(input, string(explorer.DecisionPick)+"="):
		id, err := parseID(strings.TrimPrefix(input, string(explorer.DecisionPick)+"="))
		if err != nil {
			return explorer.Decision{}, fmt.Errorf("pick: %w", err)
		}
		return explorer.Decision{Kind: explorer.DecisionPick, CandidateID: id}, nil
	default:
		return explorer.Decision{}, fmt.Errorf("decision must be cancel, continue or pick=<id>, got %q", input)
	}
}

// parseProps reads key=value pairs into a property map.
func parseProps(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		key := strings.TrimSpace(kv[0])
		if len(kv) != 2 || key == "" {
			return nil, fmt.Errorf("property must be key=value, got %q", pair)
		}
		out[key] = strings.TrimSpace(kv[1])
	}
	return out, nil
}

func parseIDs(csv string) ([]uint, error) {
	parts := strings.Split(csv, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		id, err := parseID(trimmed)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseID(s string) (uint, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid entity id %q", s)
	}
	return uint(v), nil
}

func uintToString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
