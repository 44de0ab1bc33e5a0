package cfg

// finish removes empty blocks, numbers the remaining ones and links
// predecessors.
func (b *builder) finish(entry *Block) *CFG {
	for _, blk := range b.blocks {
		if blk.Kind == None && len(blk.Successors) == 0 {
			blk.Successors = []*Block{b.exit}
		}
	}
	entry = b.prune(entry)
	blocks := order(entry, b.blocks, b.exit)
	for i, blk := range blocks {
		blk.ID = i
		blk.Predecessors = nil
	}
	for _, blk := range blocks {
		seen := make(map[*Block]bool)
		link := func(s *Block) {
			if !seen[s] {
				seen[s] = true
				s.Predecessors = append(s.Predecessors, blk)
			}
		}
		for _, s := range blk.Successors {
			link(s)
		}
		for _, s := range blk.ExceptionSuccessors {
			link(s)
		}
	}
	return &CFG{Blocks: blocks, Entry: entry, Exit: b.exit}
}

// prune redirects the predecessors of empty blocks to their single
// successor. An empty block looping to itself is kept.
func (b *builder) prune(entry *Block) *Block {
	for {
		var victim *Block
		for _, blk := range b.blocks {
			if blk.IsEmpty() && len(blk.Successors) == 1 && blk.Successors[0] != blk {
				victim = blk
				break
			}
		}
		if victim == nil {
			return entry
		}
		next := victim.Successors[0]
		kept := b.blocks[:0]
		for _, blk := range b.blocks {
			if blk != victim {
				kept = append(kept, blk)
			}
		}
		b.blocks = kept
		for _, blk := range b.blocks {
			redirect(blk.Successors, victim, next)
			redirect(blk.ExceptionSuccessors, victim, next)
		}
		if entry == victim {
			entry = next
		}
	}
}

// order lists the blocks reachable from entry breadth first, then the
// unreachable ones in creation order, then the exit.
func order(entry *Block, created []*Block, exit *Block) []*Block {
	seen := map[*Block]bool{exit: true}
	var res []*Block
	queue := []*Block{entry}
	for len(queue) > 0 {
		blk := queue[0]
		queue = queue[1:]
		if seen[blk] {
			continue
		}
		seen[blk] = true
		res = append(res, blk)
		queue = append(queue, blk.Successors...)
		queue = append(queue, blk.ExceptionSuccessors...)
	}
	for _, blk := range created {
		if !seen[blk] {
			seen[blk] = true
			res = append(res, blk)
		}
	}
	return append(res, exit)
}
