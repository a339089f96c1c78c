package files

import (
	"encoding/json"
)

// RootFolderUUID is the folder every other folder descends from.
const RootFolderUUID = "87ce50d8-5dfa-4008-a265-053e727ab793"

// FolderRef points at a folder either by euuid or by path.
type FolderRef struct {
	EUUID string `json:"euuid,omitempty"`
	Path  string `json:"path,omitempty"`
}

// RootFolder returns a reference to the root folder.
func RootFolder() *FolderRef {
	return &FolderRef{EUUID: RootFolderUUID}
}

// FileInput describes a file to the orchestrator. Name, ContentType and Size
// are filled from the upload source when left empty. Extra carries
// additional attributes the orchestrator understands; they are passed
// through unchanged and never override the typed fields.
type FileInput struct {
	Name        string
	ContentType string
	Size        int64
	// EUUID identifies the file. Uploading again with the same EUUID
	// replaces the content of the existing file.
	EUUID  string
	Folder *FolderRef
	Extra  map[string]interface{}
}

func (f FileInput) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(f.Extra)+5)
	for k, v := range f.Extra {
		out[k] = v
	}
	if f.Name != "" {
		out["name"] = f.Name
	}
	if f.ContentType != "" {
		out["content_type"] = f.ContentType
	}
	out["size"] = f.Size
	if f.EUUID != "" {
		out["euuid"] = f.EUUID
	}
	if f.Folder != nil {
		out["folder"] = f.Folder
	}
	return json.Marshal(out)
}
