package server

import (
	"net/http"
	"testing"
)

type folderEnvelope struct {
	Folder struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"folder"`
}

type foldersListPayload struct {
	Folders []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"folders"`
}

func TestFolderLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	response, raw := env.do(t, http.MethodPost, "/folders", map[string]any{"name": "Projects"})
	if response.StatusCode != http.StatusCreated {
		t.Fatalf("create returned %d: %s", response.StatusCode, raw)
	}
	var created folderEnvelope
	decodeJSON(t, raw, &created)
	if created.Folder.ID == "" || created.Folder.Name != "Projects" {
		t.Fatalf("unexpected folder: %s", raw)
	}
	id := created.Folder.ID

	response, raw = env.do(t, http.MethodGet, "/folders", nil)
	if response.StatusCode != http.StatusOK {
		t.Fatalf("list returned %d", response.StatusCode)
	}
	var list foldersListPayload
	decodeJSON(t, raw, &list)
	if len(list.Folders) != 1 || list.Folders[0].ID != id {
		t.Fatalf("unexpected folder list: %s", raw)
	}

	response, raw = env.do(t, http.MethodPatch, "/folders/"+id, map[string]any{"name": "Archive"})
	if response.StatusCode != http.StatusOK {
		t.Fatalf("rename returned %d: %s", response.StatusCode, raw)
	}
	var renamed folderEnvelope
	decodeJSON(t, raw, &renamed)
	if renamed.Folder.Name != "Archive" {
		t.Fatalf("rename not applied: %s", raw)
	}

	response, _ = env.do(t, http.MethodDelete, "/folders/"+id, nil)
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("delete returned %d", response.StatusCode)
	}
	_, raw = env.do(t, http.MethodGet, "/folders", nil)
	decodeJSON(t, raw, &list)
	if len(list.Folders) != 0 {
		t.Fatalf("deleted folder must be gone: %s", raw)
	}
}

func TestCreateFolderRejectsEmptyName(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	response, _ := env.do(t, http.MethodPost, "/folders", map[string]any{"name": "  "})
	if response.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", response.StatusCode)
	}
}

func TestRenameUnknownFolderReturnsNotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	response, _ := env.do(t, http.MethodPatch, "/folders/ghost", map[string]any{"name": "x"})
	if response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", response.StatusCode)
	}
}

func TestDeleteFolderLeavesNoteReferencesDangling(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	_, raw := env.do(t, http.MethodPost, "/folders", map[string]any{"name": "Doomed"})
	var created folderEnvelope
	decodeJSON(t, raw, &created)
	folderID := created.Folder.ID

	noteID := env.createNote(t, "text", map[string]any{"folderId": folderID})

	response, _ := env.do(t, http.MethodDelete, "/folders/"+folderID, nil)
	if response.StatusCode != http.StatusNoContent {
		t.Fatalf("delete returned %d", response.StatusCode)
	}

	// The note keeps its dangling reference; clearing it is an explicit
	// follow-up, not a cascade.
	note, ok := env.notes.Note(noteID)
	if !ok {
		t.Fatalf("note missing")
	}
	if note.FolderID != folderID {
		t.Fatalf("folder deletion must not touch notes, folderId = %q", note.FolderID)
	}
}
