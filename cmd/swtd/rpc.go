package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/rexliu/swtedit/pkg/core"
	"github.com/rexliu/swtedit/pkg/ipc"
	"github.com/rexliu/swtedit/pkg/swt"
	"github.com/rexliu/swtedit/pkg/workspace"
)

func (d *daemon) registerHandlers(srv *ipc.Server) {
	srv.Register("ping", pingHandler(d.logger))
	srv.Register("open_file", d.handleOpenFile)
	srv.Register("load", d.handleLoad)
	srv.Register("save_file", d.handleSaveFile)
	srv.Register("save_file_as", d.handleSaveFileAs)
	srv.Register("get_document", d.handleGetDocument)
	srv.Register("encode", d.handleEncode)
	srv.Register("apply_ops", d.handleApplyOps)
	srv.Register("search", d.handleSearch)
	srv.Register("flatten", d.handleFlatten)
	srv.Register("history", d.handleHistory)
	srv.Register("restore", d.handleRestore)
	srv.Register("vcs_push", d.handleVCSPush)
	srv.Register("vcs_pull", d.handleVCSPull)
	srv.RegisterStream("subscribe_events", d.handleSubscribeEvents)
}

// rpcError maps a Go error onto the protocol error codes.
func rpcError(err error) *ipc.Error {
	var merr *swt.MalformedXMLError
	var perr *fs.PathError
	switch {
	case errors.As(err, &merr):
		return ipc.Errorf(ipc.CodeMalformedXML, merr.Diagnostic, map[string]any{"line": merr.Line})
	case errors.Is(err, workspace.ErrNoDocument), errors.Is(err, workspace.ErrNoPath):
		return ipc.Errorf(ipc.CodeNoDocument, err.Error(), nil)
	case isValidationError(err):
		return ipc.Errorf(ipc.CodeValidationFailed, err.Error(), nil)
	case errors.Is(err, workspace.ErrStorage):
		return ipc.Errorf(ipc.CodeStorageError, err.Error(), nil)
	case errors.Is(err, workspace.ErrVCS):
		return ipc.Errorf(ipc.CodeVCSError, err.Error(), nil)
	case errors.As(err, &perr):
		return ipc.Errorf(ipc.CodeIOError, err.Error(), map[string]any{"path": perr.Path})
	default:
		return ipc.Errorf(ipc.CodeInternal, err.Error(), nil)
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidParent,
		core.ErrInvalidNode,
		core.ErrInvalidIndex,
		core.ErrCycleDetected,
		core.ErrInvalidKind,
		core.ErrInvalidParams,
		core.ErrInvalidAttribute,
		core.ErrInvalidText,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decodeParams(params json.RawMessage, v any) *ipc.Error {
	if len(params) == 0 {
		return ipc.Errorf(ipc.CodeInvalidRequest, "params required", nil)
	}
	if err := json.Unmarshal(params, v); err != nil {
		return ipc.Errorf(ipc.CodeInvalidRequest, "invalid params", map[string]any{"error": err.Error()})
	}
	return nil
}

// changed persists the snapshot and notifies subscribers.
func (d *daemon) changed(reason string) {
	if err := d.writeSnapshot(); err != nil {
		d.logger.Warn().Err(err).Msg("snapshot write failed")
	}
	st, ok := d.session.Snapshot()
	if !ok {
		return
	}
	d.eventHub.broadcast(event{
		Type:   "document_changed",
		Reason: reason,
		Path:   st.Path,
		Dirty:  st.Dirty,
		Count:  core.Count(st.Document),
	})
}

func (d *daemon) handleOpenFile(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var req struct {
		Path string `json:"path"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	if req.Path == "" {
		return nil, ipc.Errorf(ipc.CodeInvalidRequest, "path required", nil)
	}
	res, err := d.session.Open(ctx, req.Path)
	if err != nil {
		return nil, rpcError(err)
	}
	d.changed("open")
	st, _ := d.session.Snapshot()
	return map[string]any{"path": res.Path, "content": res.Content, "state": st}, nil
}

func (d *daemon) handleLoad(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	if err := d.session.Load(req.Path, req.Content); err != nil {
		return nil, rpcError(err)
	}
	d.changed("load")
	st, _ := d.session.Snapshot()
	return map[string]any{"state": st}, nil
}

func (d *daemon) handleSaveFile(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	res, err := d.session.Save(ctx)
	if err != nil {
		return nil, rpcError(err)
	}
	d.changed("save")
	return res, nil
}

func (d *daemon) handleSaveFileAs(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var req struct {
		Path string `json:"path"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	if req.Path == "" {
		return nil, ipc.Errorf(ipc.CodeInvalidRequest, "path required", nil)
	}
	res, err := d.session.SaveAs(ctx, req.Path)
	if err != nil {
		return nil, rpcError(err)
	}
	d.changed("save")
	return res, nil
}

func (d *daemon) handleGetDocument(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	st, ok := d.session.Snapshot()
	if !ok {
		return nil, rpcError(workspace.ErrNoDocument)
	}
	return st, nil
}

func (d *daemon) handleEncode(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	content, err := d.session.Encode()
	if err != nil {
		return nil, rpcError(err)
	}
	return map[string]any{"content": content}, nil
}

func (d *daemon) handleApplyOps(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var payload applyOpsParams
	if rpcErr := decodeParams(params, &payload); rpcErr != nil {
		return nil, rpcErr
	}
	if len(payload.Ops) == 0 {
		return nil, ipc.Errorf(ipc.CodeInvalidRequest, "ops required", nil)
	}
	ops, err := payload.toCoreOps()
	if err != nil {
		return nil, ipc.Errorf(ipc.CodeInvalidRequest, err.Error(), nil)
	}
	doc, err := d.session.Apply(ctx, ops)
	if err != nil {
		return nil, rpcError(err)
	}
	d.changed("apply")
	return map[string]any{"document": doc}, nil
}

func (d *daemon) handleSearch(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 50
	}
	st, ok := d.session.Snapshot()
	if !ok {
		return nil, rpcError(workspace.ErrNoDocument)
	}
	return map[string]any{"matches": core.Search(st.Document, req.Query, req.Limit)}, nil
}

func (d *daemon) handleFlatten(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	st, ok := d.session.Snapshot()
	if !ok {
		return nil, rpcError(workspace.ErrNoDocument)
	}
	return map[string]any{"events": core.Flatten(st.Document)}, nil
}

func (d *daemon) handleHistory(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var req struct {
		Limit int `json:"limit"`
	}
	if len(params) > 0 {
		if rpcErr := decodeParams(params, &req); rpcErr != nil {
			return nil, rpcErr
		}
	}
	revs, err := d.session.History(ctx, req.Limit)
	if err != nil {
		return nil, rpcError(err)
	}
	return map[string]any{"revisions": revs}, nil
}

func (d *daemon) handleRestore(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var req struct {
		ID string `json:"id"`
	}
	if rpcErr := decodeParams(params, &req); rpcErr != nil {
		return nil, rpcErr
	}
	doc, err := d.session.Restore(ctx, req.ID)
	if err != nil {
		return nil, rpcError(err)
	}
	d.changed("restore")
	return map[string]any{"document": doc}, nil
}

func (d *daemon) handleVCSPush(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	if d.repo == nil {
		return nil, ipc.Errorf(ipc.CodeVCSError, "git repo unavailable", nil)
	}
	if err := d.repo.Push(ctx); err != nil {
		return nil, ipc.Errorf(ipc.CodeVCSError, err.Error(), nil)
	}
	return map[string]any{"status": "ok"}, nil
}

func (d *daemon) handleVCSPull(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	if d.repo == nil {
		return nil, ipc.Errorf(ipc.CodeVCSError, "git repo unavailable", nil)
	}
	if err := d.repo.Pull(ctx); err != nil {
		return nil, ipc.Errorf(ipc.CodeVCSError, err.Error(), nil)
	}
	// Reload the open file if the pull may have changed it and there are
	// no unsaved edits to lose.
	st, ok := d.session.Snapshot()
	if ok && st.Path != "" && !st.Dirty && d.repo.Contains(st.Path) {
		if _, err := d.session.Open(ctx, st.Path); err != nil {
			return nil, rpcError(err)
		}
		d.changed("pull")
	}
	return map[string]any{"status": "ok"}, nil
}

func (d *daemon) handleSubscribeEvents(ctx context.Context, params json.RawMessage, send ipc.SendFunc) *ipc.Error {
	client := d.eventHub.register()
	defer d.eventHub.unregister(client)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-client.send:
			if !ok {
				return nil
			}
			if err := send(ev.Type, ev); err != nil {
				return nil
			}
		}
	}
}

type applyOpsParams struct {
	Ops []rpcOp `json:"ops"`
}

func (p applyOpsParams) toCoreOps() ([]core.Op, error) {
	ops := make([]core.Op, 0, len(p.Ops))
	for i, raw := range p.Ops {
		op, err := raw.toCoreOp()
		if err != nil {
			return nil, fmt.Errorf("op %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// rpcOp is the wire form of an edit. Attributes take the tagged list;
// AttributeMap takes the flat key/value view instead.
type rpcOp struct {
	Type         string            `json:"type"`
	EventID      string            `json:"eventId"`
	ParentID     string            `json:"parentId"`
	Index        *int              `json:"index"`
	NewParentID  string            `json:"newParentId"`
	NewIndex     *int              `json:"newIndex"`
	Name         *string           `json:"name"`
	Kind         *core.Kind        `json:"kind"`
	Content      *string           `json:"content"`
	ClearContent bool              `json:"clearContent"`
	Attributes   *core.Attributes  `json:"attributes"`
	AttributeMap map[string]string `json:"attributeMap"`
}

func (op rpcOp) attributes() (*core.Attributes, error) {
	if op.AttributeMap == nil {
		return op.Attributes, nil
	}
	if op.Attributes != nil {
		return nil, fmt.Errorf("attributes and attributeMap are exclusive")
	}
	attrs, err := core.AttributesFromMap(op.AttributeMap)
	if err != nil {
		return nil, err
	}
	return &attrs, nil
}

func (op rpcOp) toCoreOp() (core.Op, error) {
	attrs, err := op.attributes()
	if err != nil {
		return nil, err
	}
	switch op.Type {
	case "add_event":
		add := core.AddEventOp{ParentID: op.ParentID, Index: op.Index, Content: op.Content}
		if op.Name != nil {
			add.Name = *op.Name
		}
		if op.Kind != nil {
			add.Kind = *op.Kind
		}
		if attrs != nil {
			add.Attributes = *attrs
		}
		return add, nil
	case "update_event":
		if op.EventID == "" {
			return nil, fmt.Errorf("eventId required for update_event")
		}
		return core.UpdateEventOp{
			EventID:      op.EventID,
			Name:         op.Name,
			Kind:         op.Kind,
			Content:      op.Content,
			ClearContent: op.ClearContent,
			Attributes:   attrs,
		}, nil
	case "move_event":
		if op.EventID == "" {
			return nil, fmt.Errorf("eventId required for move_event")
		}
		return core.MoveEventOp{EventID: op.EventID, NewParentID: op.NewParentID, NewIndex: op.NewIndex}, nil
	case "delete_event":
		if op.EventID == "" {
			return nil, fmt.Errorf("eventId required for delete_event")
		}
		return core.DeleteEventOp{EventID: op.EventID}, nil
	default:
		return nil, fmt.Errorf("unknown op type %s", op.Type)
	}
}
