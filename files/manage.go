package files

import (
	"context"
	"fmt"
)

type User struct {
	Name string `json:"name"`
}

type Folder struct {
	EUUID      string  `json:"euuid"`
	Name       string  `json:"name"`
	Path       string  `json:"path,omitempty"`
	ModifiedOn string  `json:"modified_on,omitempty"`
	Parent     *Folder `json:"parent,omitempty"`
}

type File struct {
	EUUID       string  `json:"euuid"`
	Name        string  `json:"name"`
	Status      string  `json:"status,omitempty"`
	ContentType string  `json:"content_type,omitempty"`
	Size        int64   `json:"size"`
	UploadedAt  string  `json:"uploaded_at,omitempty"`
	UploadedBy  *User   `json:"uploaded_by,omitempty"`
	Folder      *Folder `json:"folder,omitempty"`
}

const fileFields = `
    euuid
    name
    status
    content_type
    size
    uploaded_at
    uploaded_by { name }`

const folderFields = `
    euuid
    name
    path
    modified_on`

// FileInfo returns the file euuid, or nil when it does not exist.
func (e *Engine) FileInfo(ctx context.Context, euuid string) (*File, error) {
	query := `query GetFile($uuid: UUID!) {
  getFile(euuid: $uuid) {` + fileFields + `
    folder { euuid name path }
  }
}`
	var file File
	found, err := e.gql.Field(ctx, query, map[string]interface{}{"uuid": euuid}, "getFile", &file)
	if err != nil || !found {
		return nil, err
	}
	return &file, nil
}

// FileFilter narrows ListFiles. Zero fields do not filter.
type FileFilter struct {
	Limit int
	// Status matches exactly, for example "UPLOADED".
	Status string
	// Name matches case-insensitively anywhere in the file name.
	Name   string
	Folder *FolderRef
}

// ListFiles returns matching files, newest first.
func (e *Engine) ListFiles(ctx context.Context, filter FileFilter) ([]File, error) {
	query := `query ListFiles($limit: Int, $where: searchFileOperator, $folder: searchFolderOperator) {
  searchFile(_limit: $limit, _where: $where, _order_by: {uploaded_at: desc}) {` + fileFields + `
    folder(_where: $folder) { euuid name path }
  }
}`
	var where []map[string]interface{}
	if filter.Status != "" {
		where = append(where, map[string]interface{}{"status": map[string]interface{}{"_eq": filter.Status}})
	}
	if filter.Name != "" {
		where = append(where, map[string]interface{}{"name": map[string]interface{}{"_ilike": "%" + filter.Name + "%"}})
	}
	variables := map[string]interface{}{}
	if filter.Limit > 0 {
		variables["limit"] = filter.Limit
	}
	if w := combine(where); w != nil {
		variables["where"] = w
	}
	if filter.Folder != nil {
		ref, err := refCondition(filter.Folder)
		if err != nil {
			return nil, err
		}
		variables["folder"] = ref
	}

	var files []File
	if _, err := e.gql.Field(ctx, query, variables, "searchFile", &files); err != nil {
		return nil, err
	}
	if filter.Folder == nil {
		return files, nil
	}
	// The folder condition applies to the relation, so files outside the
	// folder come back with no folder attached.
	out := files[:0]
	for _, f := range files {
		if f.Folder != nil {
			out = append(out, f)
		}
	}
	return out, nil
}

// DeleteFile removes the file euuid and reports whether it was deleted.
func (e *Engine) DeleteFile(ctx context.Context, euuid string) (bool, error) {
	mutation := `mutation DeleteFile($uuid: UUID!) {
  deleteFile(euuid: $uuid)
}`
	var deleted bool
	if _, err := e.gql.Field(ctx, mutation, map[string]interface{}{"uuid": euuid}, "deleteFile", &deleted); err != nil {
		return false, err
	}
	return deleted, nil
}

// FolderInput describes a folder to create. A nil Parent creates it under
// the root folder.
type FolderInput struct {
	Name   string     `json:"name"`
	EUUID  string     `json:"euuid,omitempty"`
	Parent *FolderRef `json:"parent,omitempty"`
}

func (e *Engine) CreateFolder(ctx context.Context, in FolderInput) (*Folder, error) {
	if in.Name == "" {
		return nil, validationError("folder name is required")
	}
	mutation := `mutation CreateFolder($folder: FolderInput!) {
  stackFolder(data: $folder) {` + folderFields + `
    parent { euuid name path }
  }
}`
	var folder Folder
	found, err := e.gql.Field(ctx, mutation, map[string]interface{}{"folder": in}, "stackFolder", &folder)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("folder %q was not created", in.Name)
	}
	return &folder, nil
}

// FolderFilter narrows ListFolders. RootOnly selects the folders directly
// under the root folder and takes precedence over Parent.
type FolderFilter struct {
	Limit    int
	Name     string
	Parent   *FolderRef
	RootOnly bool
}

// ListFolders returns matching folders ordered by name.
func (e *Engine) ListFolders(ctx context.Context, filter FolderFilter) ([]Folder, error) {
	query := `query ListFolders($limit: Int, $where: searchFolderOperator) {
  searchFolder(_limit: $limit, _where: $where, _order_by: {name: asc}) {` + folderFields + `
    parent { euuid name }
  }
}`
	var where []map[string]interface{}
	if filter.Name != "" {
		where = append(where, map[string]interface{}{"name": map[string]interface{}{"_ilike": "%" + filter.Name + "%"}})
	}
	parent := filter.Parent
	if filter.RootOnly {
		parent = RootFolder()
	}
	if parent != nil {
		ref, err := refCondition(parent)
		if err != nil {
			return nil, err
		}
		where = append(where, map[string]interface{}{"parent": ref})
	}
	variables := map[string]interface{}{}
	if filter.Limit > 0 {
		variables["limit"] = filter.Limit
	}
	if w := combine(where); w != nil {
		variables["where"] = w
	}

	var folders []Folder
	if _, err := e.gql.Field(ctx, query, variables, "searchFolder", &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// FolderInfo looks a folder up by euuid or path. It returns nil when the
// folder does not exist.
func (e *Engine) FolderInfo(ctx context.Context, ref FolderRef) (*Folder, error) {
	var query string
	var variables map[string]interface{}
	switch {
	case ref.EUUID != "":
		query = `query GetFolder($euuid: UUID!) {
  getFolder(euuid: $euuid) {` + folderFields + `
    parent { euuid name }
  }
}`
		variables = map[string]interface{}{"euuid": ref.EUUID}
	case ref.Path != "":
		query = `query GetFolder($path: String!) {
  getFolder(path: $path) {` + folderFields + `
    parent { euuid name }
  }
}`
		variables = map[string]interface{}{"path": ref.Path}
	default:
		return nil, validationError("folder reference needs an euuid or a path")
	}

	var folder Folder
	found, err := e.gql.Field(ctx, query, variables, "getFolder", &folder)
	if err != nil || !found {
		return nil, err
	}
	return &folder, nil
}

// DeleteFolder removes an empty folder and reports whether it was deleted.
func (e *Engine) DeleteFolder(ctx context.Context, euuid string) (bool, error) {
	mutation := `mutation DeleteFolder($uuid: UUID!) {
  deleteFolder(euuid: $uuid)
}`
	var deleted bool
	if _, err := e.gql.Field(ctx, mutation, map[string]interface{}{"uuid": euuid}, "deleteFolder", &deleted); err != nil {
		return false, err
	}
	return deleted, nil
}

func refCondition(ref *FolderRef) (map[string]interface{}, error) {
	switch {
	case ref.EUUID != "":
		return map[string]interface{}{"euuid": map[string]interface{}{"_eq": ref.EUUID}}, nil
	case ref.Path != "":
		return map[string]interface{}{"path": map[string]interface{}{"_eq": ref.Path}}, nil
	}
	return nil, validationError("folder reference needs an euuid or a path")
}

func combine(conditions []map[string]interface{}) map[string]interface{} {
	switch len(conditions) {
	case 0:
		return nil
	case 1:
		return conditions[0]
	}
	and := make([]interface{}, len(conditions))
	for i, c := range conditions {
		and[i] = c
	}
	return map[string]interface{}{"_and": and}
}
