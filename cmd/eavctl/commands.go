package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"registrar/internal/app"
	"registrar/internal/domain/eav"
)

var jsonFlag = &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending schema migrations",
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				version, err := a.Migrate(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("schema at version %d\n", version)
				return nil
			})
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Declare record types and the entity types of a schema file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "YAML schema file (defaults to EAV_SCHEMA_FILE)"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				file := c.String("file")
				if file == "" {
					file = a.Config.SchemaFile
				}
				res, err := a.Seed(ctx, file)
				if err != nil {
					return err
				}
				fmt.Printf("declared %d entity types, %d attributes\n", res.EntityTypes, res.Attributes)
				return nil
			})
		},
	}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:  "create",
		Usage: "Create an entity from a JSON object of attributes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Required: true, Usage: "entity type code"},
			&cli.StringFlag{Name: "attrs", Required: true, Usage: `attributes, e.g. '{"code":"CS101"}'`},
			&cli.StringFlag{Name: "key", Usage: "natural key"},
			&cli.StringFlag{Name: "declare", Usage: "attributes to declare first, e.g. room:string,level:number"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			attrs, err := parseAttributes(c.String("attrs"))
			if err != nil {
				return err
			}
			opts, err := writeOptions(c)
			if err != nil {
				return err
			}
			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				res, err := a.Store.CreateWithAttributes(ctx, c.String("type"), attrs, opts...)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func updateCommand() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "Upsert attributes of an entity; null erases a value",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Required: true, Usage: "entity type code"},
			&cli.Int64Flag{Name: "id", Required: true},
			&cli.StringFlag{Name: "attrs", Required: true, Usage: `attributes, e.g. '{"credits":4,"room":null}'`},
			&cli.StringFlag{Name: "key", Usage: "new natural key"},
			&cli.StringFlag{Name: "declare", Usage: "attributes to declare first, e.g. room:string"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			attrs, err := parseAttributes(c.String("attrs"))
			if err != nil {
				return err
			}
			opts, err := writeOptions(c)
			if err != nil {
				return err
			}
			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				res, err := a.Store.UpdateAttributes(ctx, c.Int64("id"), attrs, c.String("type"), opts...)
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func getCommand() *cli.Command {
	return &cli.Command{
		Name:  "get",
		Usage: "Fetch one entity with its attributes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Required: true, Usage: "entity type code"},
			&cli.Int64Flag{Name: "id", Required: true},
			&cli.BoolFlag{Name: "flat", Usage: "merge entity fields into the attribute map"},
			jsonFlag,
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				doc, err := a.Store.Fetch(ctx, c.Int64("id"), c.String("type"))
				if err != nil {
					return err
				}
				switch {
				case c.Bool("flat"):
					return printJSON(doc.Flatten())
				case c.Bool("json"):
					return printJSON(doc)
				}
				printDocument(doc)
				return nil
			})
		},
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:  "delete",
		Usage: "Delete an entity and all its values",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "id", Required: true},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				if err := a.Store.Delete(ctx, c.Int64("id")); err != nil {
					return err
				}
				fmt.Printf("deleted %d\n", c.Int64("id"))
				return nil
			})
		},
	}
}

func queryCommand() *cli.Command {
	return &cli.Command{
		Name:  "query",
		Usage: "List entities whose attributes equal the given filters",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Required: true, Usage: "entity type code"},
			&cli.StringFlag{Name: "filter", Usage: `equality filters, e.g. '{"semester":"Fall"}'`},
			&cli.IntFlag{Name: "page", Value: eav.DefaultPage},
			&cli.IntFlag{Name: "limit", Value: eav.DefaultLimit},
			jsonFlag,
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			var filters map[string]any
			if raw := c.String("filter"); raw != "" {
				var err error
				if filters, err = parseAttributes(raw); err != nil {
					return err
				}
			}
			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				page, err := a.Query.Query(ctx, c.String("type"), filters, eav.PageRequest{
					Page:  c.Int("page"),
					Limit: c.Int("limit"),
				})
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(page)
				}
				printPage(page)
				return nil
			})
		},
	}
}

func attributesCommand() *cli.Command {
	return &cli.Command{
		Name:  "attributes",
		Usage: "List the attributes declared for an entity type",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Required: true, Usage: "entity type code"},
			jsonFlag,
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
				typeID, err := a.Registry.ResolveEntityTypeID(ctx, c.String("type"))
				if err != nil {
					return err
				}
				defs, err := a.Registry.ListAttributes(ctx, typeID)
				if err != nil {
					return err
				}
				if c.Bool("json") {
					return printJSON(defs)
				}
				printAttributes(defs)
				return nil
			})
		},
	}
}

func coursesCommand() *cli.Command {
	return &cli.Command{
		Name:  "courses",
		Usage: "Course records",
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Find a course by code",
				Flags: []cli.Flag{&cli.StringFlag{Name: "code", Required: true}},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
						course, err := a.Courses.GetByCode(ctx, c.String("code"))
						if err != nil {
							return err
						}
						if course == nil {
							return fmt.Errorf("course %s not found", c.String("code"))
						}
						return printJSON(course)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List the courses of a semester",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "semester", Required: true},
					&cli.IntFlag{Name: "page", Value: eav.DefaultPage},
					&cli.IntFlag{Name: "limit", Value: eav.DefaultLimit},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withApp(ctx, c, func(ctx context.Context, a *app.App) error {
						res, err := a.Courses.ListBySemester(ctx, c.String("semester"), eav.PageRequest{
							Page:  c.Int("page"),
							Limit: c.Int("limit"),
						})
						if err != nil {
							return err
						}
						return printJSON(res)
					})
				},
			},
		},
	}
}
