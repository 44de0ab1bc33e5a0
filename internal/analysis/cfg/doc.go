// # Description
//
// Package cfg builds and analyzes Control Flow Graphs (CFG) of procedure bodies
// in the language-neutral tree form produced by the front ends.
//
// ## Control Flow Graph (CFG)
//
// A CFG is a representation, using graph notation, of all paths that might be traversed
// through a procedure during its execution. In a CFG:
//
//   - Each node is a basic block: a straight-line list of elements in evaluation order,
//     ended by an optional terminator (branch, switch, return, throw, ...).
//   - The directed edges represent jumps in the control flow. Exceptional edges are kept
//     apart, in ExceptionSuccessors.
//
// Blocks are numbered breadth first from the entry and the exit block always comes last.
// Branching blocks list their successors as [true, false].
//
// ## Package Functionality
//
// The main features of this package include:
//
//  1. CFG Construction: `Build` lowers a tree body, splitting short-circuit operators,
//     duplicating finally clauses per jump target and pruning empty blocks.
//  2. Liveness: `Liveness` computes the frame symbols live at block boundaries.
//  3. Reachability: `Unreachable` and `HasCycle` answer graph queries.
//  4. Rendering: `PrintDot` and `RenderToGraphVizFile` output the graph for inspection.
package cfg
