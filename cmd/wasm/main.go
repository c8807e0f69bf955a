//go:build js && wasm

// Command wasm exposes the page tree store to a browser view layer as the
// global KittPages object. The store syncs to a `kittpages serve` instance;
// reads and mutations are synchronous, fetches return Promises.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"syscall/js"

	"github.com/google/uuid"

	"github.com/kittclouds/kittpages/internal/remote"
	"github.com/kittclouds/kittpages/pkg/blocks"
	"github.com/kittclouds/kittpages/pkg/docstore"
	"github.com/kittclouds/kittpages/pkg/markdown"
	"github.com/kittclouds/kittpages/pkg/slug"
	"github.com/kittclouds/kittpages/pkg/templates"
)

const Version = "0.1.0"

var (
	pages     *docstore.Store
	listeners = js.Global().Get("Array").New()
	onSyncErr js.Value
)

func main() {
	js.Global().Set("KittPages", js.ValueOf(map[string]interface{}{
		"version": js.FuncOf(getVersion),
		"init":    js.FuncOf(initialize),
		// Tree
		"fetchAll":           js.FuncOf(fetchAll),
		"snapshot":           js.FuncOf(snapshot),
		"document":           js.FuncOf(document),
		"path":               js.FuncOf(path),
		"favorites":          js.FuncOf(favorites),
		"archived":           js.FuncOf(archived),
		"backlinks":          js.FuncOf(backlinks),
		"create":             js.FuncOf(create),
		"createFromTemplate": js.FuncOf(createFromTemplate),
		"update":             js.FuncOf(update),
		"toggle":             js.FuncOf(toggle),
		"setFontStyle":       js.FuncOf(setFontStyle),
		"archive":            js.FuncOf(archive),
		"restore":            js.FuncOf(restore),
		"permanentlyDelete":  js.FuncOf(permanentlyDelete),
		"move":               js.FuncOf(move),
		"duplicate":          js.FuncOf(duplicate),
		// Blocks
		"insertBlock":    js.FuncOf(insertBlock),
		"updateBlock":    js.FuncOf(updateBlock),
		"deleteBlock":    js.FuncOf(deleteBlock),
		"duplicateBlock": js.FuncOf(duplicateBlock),
		"moveBlock":      js.FuncOf(moveBlock),
		"presentation":   js.FuncOf(presentation),
		// History
		"undo":    js.FuncOf(undo),
		"redo":    js.FuncOf(redo),
		"canUndo": js.FuncOf(canUndo),
		"canRedo": js.FuncOf(canRedo),
		// Events
		"subscribe":   js.FuncOf(subscribe),
		"onSyncError": js.FuncOf(setSyncErrorHandler),
		// Helpers
		"slug":           js.FuncOf(encodeSlug),
		"decodeSlug":     js.FuncOf(decodeSlug),
		"templates":      js.FuncOf(listTemplates),
		"exportMarkdown": js.FuncOf(exportMarkdown),
		"importMarkdown": js.FuncOf(importMarkdown),
	}))

	fmt.Println("[KittPages] WASM Ready v" + Version)
	select {}
}

// =============================================================================
// Helpers
// =============================================================================

func errorResult(msg string) interface{} {
	jsonBytes, _ := json.Marshal(map[string]interface{}{"error": msg})
	return string(jsonBytes)
}

func successResult(msg string) interface{} {
	jsonBytes, _ := json.Marshal(map[string]interface{}{"success": msg})
	return string(jsonBytes)
}

func jsonResult(v interface{}) interface{} {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return errorResult(err.Error())
	}
	return string(jsonBytes)
}

// makePromise creates a JS Promise and returns it along with resolve/reject functions.
func makePromise() (promise js.Value, resolve js.Value, reject js.Value) {
	var resolveFn, rejectFn js.Value
	handler := js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		resolveFn = args[0]
		rejectFn = args[1]
		return nil
	})
	defer handler.Release()

	promise = js.Global().Get("Promise").New(handler)
	return promise, resolveFn, rejectFn
}

func jsError(format string, a ...interface{}) js.Value {
	return js.Global().Get("Error").New(fmt.Sprintf(format, a...))
}

// arg returns args[i] as a string, "" when missing, null or undefined.
func arg(args []js.Value, i int) string {
	if i >= len(args) || args[i].IsUndefined() || args[i].IsNull() {
		return ""
	}
	return args[i].String()
}

func intArg(args []js.Value, i int) int {
	if i >= len(args) || args[i].Type() != js.TypeNumber {
		return 0
	}
	return args[i].Int()
}

// ready guards every call that needs init to have run.
func ready() bool {
	return pages != nil
}

const notInitialized = "KittPages not initialized (call init first)"

// =============================================================================
// Setup
// =============================================================================

func getVersion(this js.Value, args []js.Value) interface{} {
	return Version
}

// initialize creates the store.
// Args: baseURL (string) - address of the kittpages server
func initialize(this js.Value, args []js.Value) interface{} {
	baseURL := arg(args, 0)
	if baseURL == "" {
		return errorResult("init requires the server base URL")
	}
	pages = docstore.New(remote.NewClient(baseURL),
		docstore.WithSyncErrorHandler(func(e docstore.SyncError) {
			if onSyncErr.Type() == js.TypeFunction {
				onSyncErr.Invoke(e.Op, e.ID, e.Err.Error())
			}
		}),
	)
	pages.Subscribe(func() {
		n := listeners.Length()
		for i := 0; i < n; i++ {
			listeners.Index(i).Invoke()
		}
	})
	return successResult("initialized")
}

// subscribe registers a change listener.
// Args: fn (function)
// Returns: unsubscribe function
func subscribe(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeFunction {
		return errorResult("subscribe requires a function")
	}
	fn := args[0]
	listeners.Call("push", fn)

	var unsubscribe js.Func
	unsubscribe = js.FuncOf(func(this js.Value, _ []js.Value) interface{} {
		if i := listeners.Call("indexOf", fn).Int(); i >= 0 {
			listeners.Call("splice", i, 1)
		}
		unsubscribe.Release()
		return nil
	})
	return unsubscribe
}

// setSyncErrorHandler registers fn(op, id, message) for failed backend writes.
func setSyncErrorHandler(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return errorResult("onSyncError requires a function")
	}
	onSyncErr = args[0]
	return nil
}

// =============================================================================
// Tree
// =============================================================================

// fetchAll loads every document from the server.
// Returns: Promise<void>
func fetchAll(this js.Value, args []js.Value) interface{} {
	promise, resolve, reject := makePromise()
	go func() {
		if !ready() {
			reject.Invoke(jsError(notInitialized))
			return
		}
		if err := pages.FetchAll(context.Background()); err != nil {
			reject.Invoke(jsError("fetchAll: %v", err))
			return
		}
		resolve.Invoke()
	}()
	return promise
}

func snapshot(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return jsonResult(pages.Snapshot())
}

func document(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	d, ok := pages.Document(arg(args, 0))
	if !ok {
		return js.Null()
	}
	return jsonResult(d)
}

func path(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return jsonResult(pages.Path(arg(args, 0)))
}

func favorites(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return jsonResult(pages.Favorites())
}

func archived(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return jsonResult(pages.Archived())
}

func backlinks(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return jsonResult(pages.Backlinks(arg(args, 0)))
}

// create adds a page.
// Args: parentID (string, optional)
// Returns: new id, or null when the parent is unknown
func create(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	id, ok := pages.Create(arg(args, 0))
	if !ok {
		return js.Null()
	}
	return id
}

// createFromTemplate adds a page seeded from a template.
// Args: templateID (string), parentID (string, optional)
func createFromTemplate(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	id, ok := pages.CreateFromTemplate(arg(args, 0), arg(args, 1))
	if !ok {
		return js.Null()
	}
	return id
}

// update merges fields into a page.
// Args: id (string), fieldsJSON (string)
func update(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	var f docstore.Fields
	if err := json.Unmarshal([]byte(arg(args, 1)), &f); err != nil {
		return errorResult("invalid fields json: " + err.Error())
	}
	return pages.Update(arg(args, 0), f)
}

// toggle flips one boolean flag.
// Args: flag ("expanded"|"favorite"|"published"|"fullWidth"|"locked"), id (string)
func toggle(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	id := arg(args, 1)
	switch arg(args, 0) {
	case "expanded":
		return pages.ToggleExpanded(id)
	case "favorite":
		return pages.ToggleFavorite(id)
	case "published":
		return pages.TogglePublished(id)
	case "fullWidth":
		return pages.ToggleFullWidth(id)
	case "locked":
		return pages.ToggleLocked(id)
	}
	return errorResult("unknown flag " + arg(args, 0))
}

func setFontStyle(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return pages.SetFontStyle(arg(args, 0), arg(args, 1))
}

func archive(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return pages.Archive(arg(args, 0))
}

func restore(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return pages.Restore(arg(args, 0))
}

func permanentlyDelete(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return pages.PermanentlyDelete(arg(args, 0))
}

// move reparents or reorders a page.
// Args: id (string), newParentID (string, "" for root), index (number)
func move(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return pages.Move(arg(args, 0), arg(args, 1), intArg(args, 2))
}

// duplicate copies a page and its subpages.
// Returns: Promise<string> with the copy's id
func duplicate(this js.Value, args []js.Value) interface{} {
	id := arg(args, 0)
	promise, resolve, reject := makePromise()
	go func() {
		if !ready() {
			reject.Invoke(jsError(notInitialized))
			return
		}
		copyID, err := pages.Duplicate(context.Background(), id)
		if err != nil {
			reject.Invoke(jsError("duplicate: %v", err))
			return
		}
		resolve.Invoke(copyID)
	}()
	return promise
}

// =============================================================================
// Blocks
// =============================================================================

// insertBlock adds a block.
// Args: docID (string), blockJSON (string), index (number)
// Returns: block id, or null when the document is unknown
func insertBlock(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	var b blocks.Block
	if err := json.Unmarshal([]byte(arg(args, 1)), &b); err != nil {
		return errorResult("invalid block json: " + err.Error())
	}
	id, ok := pages.InsertBlock(arg(args, 0), b, intArg(args, 2))
	if !ok {
		return js.Null()
	}
	return id
}

// updateBlock applies a patch.
// Args: docID (string), blockID (string), patchJSON (string)
func updateBlock(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	var p blocks.Patch
	if err := json.Unmarshal([]byte(arg(args, 2)), &p); err != nil {
		return errorResult("invalid patch json: " + err.Error())
	}
	return pages.UpdateBlock(arg(args, 0), arg(args, 1), p)
}

func deleteBlock(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return pages.DeleteBlock(arg(args, 0), arg(args, 1))
}

func duplicateBlock(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	id, ok := pages.DuplicateBlock(arg(args, 0), arg(args, 1))
	if !ok {
		return js.Null()
	}
	return id
}

// moveBlock reorders a block.
// Args: docID (string), from (number), to (number)
func moveBlock(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	return pages.MoveBlock(arg(args, 0), intArg(args, 1), intArg(args, 2))
}

// presentation returns the derived render state of a document's blocks.
// Returns: JSON {visible, numbers, grouped, headings, stats}
func presentation(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	d, ok := pages.Document(arg(args, 0))
	if !ok {
		return js.Null()
	}
	visible := []string{}
	for _, b := range blocks.Visible(d.Content) {
		visible = append(visible, b.ID)
	}
	return jsonResult(map[string]interface{}{
		"visible":  visible,
		"numbers":  blocks.Numbering(d.Content),
		"grouped":  blocks.Groups(d.Content),
		"headings": blocks.Headings(d.Content),
		"stats":    blocks.ComputeStats(d.Content),
	})
}

// =============================================================================
// History
// =============================================================================

func undo(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return false
	}
	return pages.Undo()
}

func redo(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return false
	}
	return pages.Redo()
}

func canUndo(this js.Value, args []js.Value) interface{} {
	return ready() && pages.CanUndo()
}

func canRedo(this js.Value, args []js.Value) interface{} {
	return ready() && pages.CanRedo()
}

// =============================================================================
// Helpers exposed to JS
// =============================================================================

// encodeSlug builds a page address.
// Args: title (string), id (string)
func encodeSlug(this js.Value, args []js.Value) interface{} {
	return slug.Path(arg(args, 0), arg(args, 1))
}

// decodeSlug recovers the id from an address; null when it has none.
func decodeSlug(this js.Value, args []js.Value) interface{} {
	id, ok := slug.Decode(arg(args, 0))
	if !ok {
		return js.Null()
	}
	return id
}

func listTemplates(this js.Value, args []js.Value) interface{} {
	type entry struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Icon        string `json:"icon"`
		Description string `json:"description"`
	}
	var out []entry
	for _, t := range templates.Default().List() {
		out = append(out, entry{t.ID, t.Name, t.Icon, t.Description})
	}
	return jsonResult(out)
}

// exportMarkdown renders a page as Markdown.
func exportMarkdown(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	d, ok := pages.Document(arg(args, 0))
	if !ok {
		return js.Null()
	}
	link := func(id string) (string, string, bool) {
		t, ok := pages.Document(id)
		if !ok {
			return "", "", false
		}
		return t.DisplayTitle(), slug.Path(t.Title, t.ID), true
	}
	return markdown.Export(d.Title, d.Content, link)
}

// importMarkdown creates a page from Markdown.
// Args: markdown (string), parentID (string, optional)
// Returns: new id, or null when the parent is unknown
func importMarkdown(this js.Value, args []js.Value) interface{} {
	if !ready() {
		return errorResult(notInitialized)
	}
	page := markdown.Import([]byte(arg(args, 0)), uuid.NewString)
	id, ok := pages.CreatePage(arg(args, 1), page.Title, page.Blocks)
	if !ok {
		return js.Null()
	}
	return id
}
