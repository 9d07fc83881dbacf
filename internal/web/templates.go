package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/Rubix982/django-photo-edit/internal/pkg/session"
	"github.com/Rubix982/django-photo-edit/internal/service"
	"github.com/Rubix982/django-photo-edit/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageData struct {
	Title     string
	UserID    int64
	Flashes   []session.Flash
	Error     string
	Providers []string
	Photos    []store.Photo
	Edit      service.EditPage
}

type pages map[string]*template.Template

func loadPages() pages {
	funcs := template.FuncMap{
		"imageURL": func(photoID int64, effect string) string {
			return fmt.Sprintf("/photo/edit/%d/%s/image", photoID, effect)
		},
		"editURL": func(photoID int64, effect string) string {
			return fmt.Sprintf("/photo/edit/%d/%s/", photoID, effect)
		},
		"deleteURL": func(p store.Photo) string {
			return fmt.Sprintf("/photo/delete/%d/%s/", p.ID, p.PublicID)
		},
	}

	p := make(pages)
	for _, name := range []string{"homepage.html", "photos.html", "edit.html"} {
		p[name] = template.Must(template.New("base.html").Funcs(funcs).ParseFS(templateFS, "templates/base.html", "templates/"+name))
	}
	return p
}

// render executes the page into a buffer first so a template failure can
// still produce a clean 500.
func (p pages) render(w http.ResponseWriter, status int, name string, data pageData) error {
	t, ok := p[name]
	if !ok {
		return fmt.Errorf("unknown page %s", name)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
