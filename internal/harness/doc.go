// Package harness runs transform scenarios.
//
// A scenario describes a small set of application classes, the host-context
// rules of the run, and assertions about what the pipeline did to them. The
// harness builds the classes, runs the full pipeline against stubs of the
// host framework and shadow runtime, records the run in an in-memory ledger,
// and evaluates the assertions.
//
// # Scenario Format
//
//	name: fragment_swap
//	description: "A fragment moves to its suffixed name"
//	classes:
//	  - name: com.example.ListFragment
//	    super: android.app.Fragment
//	    default_constructor: true
//	    methods:
//	      - name: attach
//	        access: [public]
//	        descriptor: (Landroid/content/Context;)V
//	        code: |
//	          this
//	          load Landroid/content/Context; 1
//	          invokevirtual com.example.ListFragment.onAttach (Landroid/content/Context;)V
//	          return V
//	rules:
//	  - com.example.Sdk.init(android.content.Context)$1
//	expect_error: NAME_COLLISION
//	assertions:
//	  - type: trace_contains
//	    kind: moved
//	    subject: com.example.ListFragment
//	  - type: extends
//	    class: com.example.ListFragment_
//	    super: com.tencent.shadow.runtime.ShadowFragment
//	  - type: final_state
//	    table: fragments
//	    where: { original_name: com.example.ListFragment }
//	    expect: { kind: fragment }
//
// Method bodies use one instruction per line: this, load, new, checkcast,
// instanceof, ldc, dup, pop, null, the four invoke forms and return. A
// method without code is declared native.
//
// # Assertion Types
//
//   - trace_contains: an event matching every given field exists
//   - trace_order: matching events appear in the given order
//   - trace_count: exactly count events match
//   - final_state: a ledger row matches (fragments, clones, events, steps, runs)
//   - extends: a class has the given superclass
//   - disasm_contains: a class's disassembly contains text
//   - no_reference: no application class (or the named one) refers to target
//
// # Deterministic Testing
//
// Runs use a fixed run ID and a fresh logical clock, so the trace of a
// scenario is identical across runs and can be compared against a golden
// file.
package harness
