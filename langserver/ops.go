package langserver

import (
	"context"
	"encoding/json"
	"os"

	protocol "github.com/tliron/glsp/protocol_3_16"

	"github.com/ferrule-dev/ferrule/errors"
)

// Hover returns hover information at a position, or nil when the server
// has nothing to say. The file is opened on demand.
func (c *Client) Hover(ctx context.Context, path string, line, character int) (*Hover, error) {
	conn, uri, err := c.prepare(ctx, path)
	if err != nil {
		return nil, err
	}

	params := protocol.HoverParams{
		TextDocumentPositionParams: positionParams(uri, line, character),
	}
	raw, err := conn.Call(ctx, "textDocument/hover", params)
	if err != nil {
		return nil, errors.Wrapf(err, "hover at %s:%d:%d", path, line, character)
	}
	if isNullResult(raw) {
		return nil, nil
	}

	var hover Hover
	if err := json.Unmarshal(raw, &hover); err != nil {
		return nil, errors.WrapProtocol(err, "failed to decode hover result")
	}
	return &hover, nil
}

// Definition returns the definition location(s) for the symbol at a
// position.
func (c *Client) Definition(ctx context.Context, path string, line, character int) ([]Location, error) {
	conn, uri, err := c.prepare(ctx, path)
	if err != nil {
		return nil, err
	}

	params := protocol.DefinitionParams{
		TextDocumentPositionParams: positionParams(uri, line, character),
	}
	raw, err := conn.Call(ctx, "textDocument/definition", params)
	if err != nil {
		return nil, errors.Wrapf(err, "definition at %s:%d:%d", path, line, character)
	}
	return decodeLocations(raw)
}

// References finds all references to the symbol at a position
func (c *Client) References(ctx context.Context, path string, line, character int, includeDeclaration bool) ([]Location, error) {
	conn, uri, err := c.prepare(ctx, path)
	if err != nil {
		return nil, err
	}

	params := protocol.ReferenceParams{
		TextDocumentPositionParams: positionParams(uri, line, character),
		Context: protocol.ReferenceContext{
			IncludeDeclaration: includeDeclaration,
		},
	}
	raw, err := conn.Call(ctx, "textDocument/references", params)
	if err != nil {
		return nil, errors.Wrapf(err, "references at %s:%d:%d", path, line, character)
	}
	return decodeLocations(raw)
}

// DidOpen reads the file and announces it to the server. Opening the same
// file twice on one connection is a no-op.
func (c *Client) DidOpen(ctx context.Context, path string) error {
	conn, err := c.connected()
	if err != nil {
		return err
	}

	uri := FileToURI(c.cfg.RootDir, path)

	c.mu.Lock()
	_, open := c.docs[uri]
	c.mu.Unlock()
	if open {
		return nil
	}

	langID, err := LanguageForPath(path)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(URIToFile(uri))
	if err != nil {
		return errors.Wrapf(err, "failed to read %s", path)
	}

	params := protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        protocol.DocumentUri(uri),
			LanguageID: langID,
			Version:    1,
			Text:       string(content),
		},
	}
	if err := conn.Notify("textDocument/didOpen", params); err != nil {
		return errors.Wrapf(err, "didOpen failed for %s", path)
	}

	c.mu.Lock()
	c.docs[uri] = struct{}{}
	c.mu.Unlock()
	return nil
}

// DidClose tells the server the file is no longer open
func (c *Client) DidClose(ctx context.Context, path string) error {
	conn, err := c.connected()
	if err != nil {
		return err
	}

	uri := FileToURI(c.cfg.RootDir, path)

	c.mu.Lock()
	_, open := c.docs[uri]
	delete(c.docs, uri)
	c.mu.Unlock()
	if !open {
		return nil
	}

	params := protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentUri(uri)},
	}
	if err := conn.Notify("textDocument/didClose", params); err != nil {
		return errors.Wrapf(err, "didClose failed for %s", path)
	}
	return nil
}

// prepare resolves the live connection and makes sure the file is open
func (c *Client) prepare(ctx context.Context, path string) (*Conn, string, error) {
	if err := c.DidOpen(ctx, path); err != nil {
		return nil, "", err
	}
	conn, err := c.connected()
	if err != nil {
		return nil, "", err
	}
	return conn, FileToURI(c.cfg.RootDir, path), nil
}

func positionParams(uri string, line, character int) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: protocol.DocumentUri(uri)},
		Position: protocol.Position{
			Line:      uint32(line),
			Character: uint32(character),
		},
	}
}

// decodeLocations accepts the three shapes servers use for definition-style
// results: LocationLink[], Location[], or a bare Location.
func decodeLocations(raw json.RawMessage) ([]Location, error) {
	if isNullResult(raw) {
		return nil, nil
	}

	var links []struct {
		TargetURI            string `json:"targetUri"`
		TargetSelectionRange Range  `json:"targetSelectionRange"`
	}
	if err := json.Unmarshal(raw, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
		locs := make([]Location, len(links))
		for i, link := range links {
			locs[i] = Location{URI: link.TargetURI, Range: link.TargetSelectionRange}
		}
		return locs, nil
	}

	var locs []Location
	if err := json.Unmarshal(raw, &locs); err == nil && (len(locs) == 0 || locs[0].URI != "") {
		return locs, nil
	}

	var loc Location
	if err := json.Unmarshal(raw, &loc); err == nil && loc.URI != "" {
		return []Location{loc}, nil
	}

	return nil, errors.NewProtocolf("unrecognized location result %.60s", string(raw))
}

func isNullResult(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
