package admin

import (
	"context"
	"fmt"
	"strings"

	"github.com/pitabwire/govconsole/internal/console"
	"github.com/pitabwire/govconsole/internal/pagination"
	"github.com/pitabwire/govconsole/internal/store"
	"github.com/pitabwire/govconsole/model"
)

// collection is one managed collection screen. The same layout serves SME
// groups, topics and committees.
type collection struct {
	*admin
	kind  store.Kind
	title string

	screen *console.Screen
	list   *console.Action
	manage *console.Action
	add    *console.Action
	remove *console.Action
}

func (a *admin) collectionScreen(kind store.Kind, title string) *console.Screen {
	c := &collection{admin: a, kind: kind, title: title}

	c.list = console.NewAction("list",
		console.Operation(console.DefaultOperation, c.renderList),
	)
	c.add = console.NewAction("add",
		console.Operation("form", c.addForm),
		console.FormOperation("submit", c.submit),
	)
	c.remove = console.NewAction("remove",
		console.Operation("pick", c.pick),
		console.ComponentOperation("confirm", c.confirm),
	)
	c.manage = console.NewAction("manage",
		console.Operation(console.DefaultOperation, c.renderManage),
		console.SubActions(c.add, c.remove),
	)

	c.screen = console.NewScreen(string(kind),
		console.WithTitle(title),
		console.WithRender(c.renderList),
		console.WithActions(c.list, c.manage, c.add, c.remove),
		console.WithPermission(console.RequireCapabilities(string(kind)+":manage")),
	)
	return c.screen
}

func (c *collection) plural(n int) string {
	if n == 1 {
		return c.kind.Singular()
	}
	return c.kind.Singular() + "s"
}

func (c *collection) page(ctx context.Context, req *console.Request) (pagination.Page, []store.Item, error) {
	n, err := c.store.Count(ctx, c.kind)
	if err != nil {
		return pagination.Page{}, nil, err
	}
	page, err := pagination.Resolve(req.ID, n, c.pageSize)
	if err != nil {
		return pagination.Page{}, nil, err
	}
	if page.Empty() {
		return page, nil, nil
	}
	items, err := c.store.List(ctx, c.kind, page.Offset, page.Limit)
	if err != nil {
		return pagination.Page{}, nil, err
	}
	return page, items, nil
}

// renderList is the screen's default view: one page of the collection.
func (c *collection) renderList(ctx context.Context, req *console.Request) (model.View, error) {
	page, items, err := c.page(ctx, req)
	if err != nil {
		return model.View{}, err
	}

	v := model.View{Title: c.title, Description: page.Label()}
	if page.Empty() {
		v.Description = fmt.Sprintf("No %s yet.", c.plural(0))
	}
	for _, it := range items {
		desc := it.Description
		if desc == "" {
			desc = "-"
		}
		v.Fields = append(v.Fields, model.Field{Name: it.Name, Value: desc})
	}

	controls, err := pagination.NavigationControls(c.list.ID(console.DefaultOperation), page.Index, page.Total)
	if err != nil {
		return model.View{}, err
	}
	manage, err := c.manage.Button("Manage", model.StylePrimary, console.DefaultOperation, pageArg(page.Index))
	if err != nil {
		return model.View{}, err
	}
	home, err := c.homeButton()
	if err != nil {
		return model.View{}, err
	}
	v.Rows = model.RowsOf(append(controls, manage, home)...)

	if page.Stale {
		v = v.WithBanner(model.NoticeBanner(staleNotice))
	}
	return v, nil
}

func (c *collection) renderManage(_ context.Context, req *console.Request) (model.View, error) {
	add, err := c.add.Button("Add", model.StyleSuccess, "form")
	if err != nil {
		return model.View{}, err
	}
	remove, err := c.remove.Button("Remove", model.StyleDanger, "pick", pageArgs(req)...)
	if err != nil {
		return model.View{}, err
	}
	back, err := c.list.Button("Back", model.StyleSecondary, console.DefaultOperation, pageArgs(req)...)
	if err != nil {
		return model.View{}, err
	}
	return model.View{
		Title:       "Manage " + strings.ToLower(c.title),
		Description: fmt.Sprintf("Add a new %s or remove existing ones.", c.kind.Singular()),
		Rows:        model.RowsOf(add, remove, back),
	}, nil
}

func (c *collection) addForm(context.Context, *console.Request) (model.View, error) {
	customID, err := c.add.CustomID("submit")
	if err != nil {
		return model.View{}, err
	}
	return model.View{
		Kind:  model.ViewForm,
		Title: "New " + c.kind.Singular(),
		Form: &model.FormDescriptor{
			CustomID: customID,
			Title:    "New " + c.kind.Singular(),
			Inputs: []model.Input{
				{
					Name:      "name",
					Label:     "Name",
					Style:     model.InputShort,
					Required:  true,
					MaxLength: store.MaxNameLength,
				},
				{
					Name:      "description",
					Label:     "Description",
					Style:     model.InputParagraph,
					MaxLength: store.MaxDescriptionLength,
				},
			},
		},
	}, nil
}

func (c *collection) submit(ctx context.Context, req *console.Request, f model.FormSubmit) (model.View, error) {
	it, err := c.store.Create(ctx, c.kind, f.Field("name"), f.Field("description"))
	if err != nil {
		if msg, ok := userMessage(err); ok {
			return c.screen.ReRender(ctx, req, model.ErrorBanner(msg)), nil
		}
		return model.View{}, err
	}
	return c.screen.ReRender(ctx, req,
		model.SuccessBanner(fmt.Sprintf("Added %s %q.", c.kind.Singular(), it.Name))), nil
}

func (c *collection) pick(ctx context.Context, req *console.Request) (model.View, error) {
	page, items, err := c.page(ctx, req)
	if err != nil {
		return model.View{}, err
	}
	back, err := c.manage.Button("Back", model.StyleSecondary, console.DefaultOperation, pageArg(page.Index))
	if err != nil {
		return model.View{}, err
	}
	v := model.View{Title: "Remove " + c.plural(2)}
	if len(items) == 0 {
		v.Description = "There is nothing to remove."
		v.Rows = model.RowsOf(back)
		return v, nil
	}

	opts := make([]model.Option, 0, len(items))
	for _, it := range items {
		opts = append(opts, model.Option{Label: it.Name, Value: fmt.Sprint(it.ID)})
	}
	sel, err := c.remove.Select("Choose the "+c.plural(2)+" to remove", "confirm", opts, pageArg(page.Index))
	if err != nil {
		return model.View{}, err
	}
	sel.MaxValues = len(opts)
	v.Description = page.Label()
	v.Rows = model.RowsOf(sel, back)
	return v, nil
}

func (c *collection) confirm(ctx context.Context, req *console.Request, comp model.Component) (model.View, error) {
	if len(comp.Values) == 0 {
		return model.View{}, model.NewBadRequestError("no entries selected")
	}
	ids := make([]int64, 0, len(comp.Values))
	for _, raw := range comp.Values {
		id, err := parseID(raw, c.kind.Singular())
		if err != nil {
			return model.View{}, err
		}
		ids = append(ids, id)
	}

	n, err := c.store.Delete(ctx, c.kind, ids...)
	if model.HasCode(err, model.ErrNotFound) {
		return c.screen.ReRender(ctx, req, model.ErrorBanner("Those entries no longer exist.")), nil
	}
	if err != nil {
		return model.View{}, err
	}
	return c.screen.ReRender(ctx, req,
		model.SuccessBanner(fmt.Sprintf("Removed %d %s.", n, c.plural(n)))), nil
}
