package mcpserver

// TreeFormatContract describes how trees are addressed and what the node
// kinds mean, for LLM consumers of the tools.
const TreeFormatContract = `# mind Tree Format

A tree is an ordered hierarchy of nodes under a single root. Every node has
a numeric id, a non-empty text, an optional icon and a kind.

## Kinds

- ` + "`internal`" + `: a plain node. It may have children and carries no payload.
- ` + "`data`" + `: the node owns a file stored next to the tree, usually
  ` + "`data/<id>.<ext>`" + `. Content types: md, txt, org, json.
- ` + "`url`" + `: the node points at a link, stored verbatim.

## Paths

- Paths are slash separated texts from the root: ` + "`/Tasks/On-going/do this`" + `.
- ` + "`/`" + ` (or an empty path) is the root.
- Sibling texts may repeat. A path through a repeated text is ambiguous and
  fails; use the id form for that segment: ` + "`/Tasks/3345: do this`" + `.
  The text after ` + "`<id>: `" + ` is ignored, so ` + "`/Tasks/3345:`" + ` works too.
- Texts containing "/" cannot be addressed by text; use the id form.
- ` + "`list_paths`" + ` with ids=true returns id-qualified paths that always resolve.

## Placement

Inserting or moving relative to an anchor node:

- ` + "`before`" + ` / ` + "`after`" + `: become a sibling of the anchor. Not allowed on the root.
- ` + "`first`" + ` / ` + "`last`" + ` (aliases ` + "`top`" + ` / ` + "`bottom`" + `): become a child of the anchor.

## Rules

1. Texts and icons are trimmed; an empty text is rejected.
2. The root can be neither moved nor removed.
3. A node cannot be moved below itself.
4. Removing a node removes its whole subtree and needs confirm=true. Data
   files are left on disk.
5. Every change is saved at once. If the tree file was changed by someone
   else since it was read, the change fails and must be retried.

## Trees

- global: one per user, created on first use.
- local: ` + "`<dir>/.mind/tree.json`" + `, created by init in that exact directory.
- project: registered per directory and stored in the user state directory.

Pass category=local|project|global to pick one explicitly; otherwise the
local tree wins over a project tree, which wins over the global tree.
`
