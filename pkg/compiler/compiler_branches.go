package compiler

import "dumbo/pkg/object"

// branch records what a body that may not run changed while it was lowered,
// so the bindings from before the body can be put back when it ends.
type branch struct {
	// the body is known never to run
	skipped bool
	saved   map[string]savedBinding
	aliases map[string][]string
}

type savedBinding struct {
	v         *object.Variable // nil when the body declared the name
	uncertain bool
}

func (b *branch) save(name string, c *Compiler) {
	if _, ok := b.saved[name]; ok {
		return
	}
	old, err := c.resolve(name)
	if err != nil {
		old = nil
	}
	b.saved[name] = savedBinding{v: old, uncertain: c.uncertain[name]}
}

func (c *Compiler) enterBranch(skipped bool) {
	c.branches = append(c.branches, &branch{
		skipped: skipped,
		saved:   make(map[string]savedBinding),
		aliases: make(map[string][]string),
	})
}

// leaveBranch restores what the innermost branch rebound. Unless the body
// never runs, every name it rebound is left without a known value.
func (c *Compiler) leaveBranch() {
	n := len(c.branches)
	b := c.branches[n-1]
	c.branches = c.branches[:n-1]

	var parent *branch
	if n > 1 {
		parent = c.branches[n-2]
	}

	for name, old := range b.saved {
		// A name the body declared keeps the binding the body gave it. It
		// is in the table from lowering on, whether or not the body runs.
		if old.v != nil {
			c.setView(old.v)
			if b.skipped && !old.uncertain {
				delete(c.uncertain, name)
			} else {
				c.uncertain[name] = true
			}
		}
		if parent != nil {
			if _, ok := parent.saved[name]; !ok {
				parent.saved[name] = old
			}
		}
	}

	if b.skipped {
		return
	}
	for name, targets := range b.aliases {
		if parent != nil {
			parent.aliases[name] = append(parent.aliases[name], targets...)
		} else {
			c.maybe[name] = append(c.maybe[name], targets...)
		}
	}
}

// decided reports the value of an if condition when it is already known
// while lowering. Inside a loop later iterations may see other values.
func (c *Compiler) decided(cond *object.Variable) (value, known bool) {
	if c.inLoop {
		return false, false
	}
	d, err := c.follow(cond)
	if err != nil {
		return false, false
	}
	b, ok := d.Value.(*object.Boolean)
	if !ok {
		return false, false
	}
	return b.Value, true
}

// loopRuns reports whether a loop over iterable runs its body at least
// once, when that is known while lowering.
func (c *Compiler) loopRuns(iterable *object.Variable) (runs, known bool) {
	d, err := c.follow(iterable)
	if err != nil {
		return false, false
	}
	list, ok := d.Value.(*object.List)
	if !ok {
		return false, false
	}
	return len(list.Elements) > 0, true
}
