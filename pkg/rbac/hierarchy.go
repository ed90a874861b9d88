package rbac

import "sort"

// GroupChildren annotates every permission of a role with the other
// permissions of the same set whose parent is its key. Grouping is one
// level deep and every node keeps its place in the flat list. A node with
// no children carries an empty slice.
func GroupChildren(perms []Permission) []PermissionNode {
	byParent := make(map[string][]Permission)
	for _, p := range perms {
		if p.Parent != nil && *p.Parent != p.Key {
			byParent[*p.Parent] = append(byParent[*p.Parent], p)
		}
	}

	nodes := make([]PermissionNode, 0, len(perms))
	for _, p := range perms {
		children := byParent[p.Key]
		if children == nil {
			children = []Permission{}
		}
		nodes = append(nodes, PermissionNode{Permission: p, Children: children})
	}
	return nodes
}

// BuildTree arranges the catalog into trees rooted at permissions without a
// parent, or whose parent is not in perms. Siblings are sorted by key.
func BuildTree(perms []Permission) []*TreeNode {
	nodes := make(map[string]*TreeNode, len(perms))
	for _, p := range perms {
		nodes[p.Key] = &TreeNode{Permission: p, Children: []*TreeNode{}}
	}

	var roots []*TreeNode
	for _, p := range perms {
		node := nodes[p.Key]
		if p.Parent == nil {
			roots = append(roots, node)
			continue
		}
		parent, ok := nodes[*p.Parent]
		if !ok || parent == node {
			roots = append(roots, node)
			continue
		}
		parent.Children = append(parent.Children, node)
	}

	for _, n := range nodes {
		sortNodes(n.Children)
	}
	sortNodes(roots)
	if roots == nil {
		roots = []*TreeNode{}
	}
	return roots
}

func sortNodes(nodes []*TreeNode) {
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Key < nodes[j].Key })
}

// findCycle returns a key that lies on a parent cycle, or "" when the graph
// is acyclic. Parents outside the map are treated as roots.
func findCycle(parents map[string]string) string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(parents))

	keys := make([]string, 0, len(parents))
	for k := range parents {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, start := range keys {
		var path []string
		key := start
		for {
			if state[key] == done {
				break
			}
			if state[key] == visiting {
				return key
			}
			state[key] = visiting
			path = append(path, key)

			parent, ok := parents[key]
			if !ok || parent == "" {
				break
			}
			if _, known := parents[parent]; !known {
				break
			}
			key = parent
		}
		for _, k := range path {
			state[k] = done
		}
	}
	return ""
}
