// Package capnplayout is a struct layout and encoding engine for a
// Cap'n-Proto-style binary format.
//
// Given a parsed schema graph it assigns every field a position inside a
// struct's data section (64-bit words of packed scalars) or pointer section
// (64-bit reference slots), and encodes value trees to and from that layout.
//
// # Architecture Overview
//
//	capnplayout/         Root package with core Memory and Allocator interfaces
//	├── schema/          Parsed schema graph, literal value trees, JSON loader
//	├── catalog/         Type resolution through the scope chain, constants
//	├── layout/          Struct planner, union packer, list compaction, dumps
//	├── wire/            Pointer words, segment arena, stream framing
//	│   └── wasmmem/     Messages inside WebAssembly linear memory (wazero)
//	├── codec/           Value encoder/decoder and the default-value codec
//	├── witbridge/       Projection of planned structs onto WIT types
//	├── errors/          Structured error types
//	└── cmd/layoutc/     Command line layout inspector
//
// # Quick Start
//
//	file, err := schema.LoadJSON(r)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	planner := codec.NewPlanner(file, layout.Options{})
//	st, err := planner.PlanName("TestAllTypes")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	enc := codec.NewEncoder(planner, codec.Options{})
//	msg, err := enc.Encode(st, schema.Struct{{Name: "int32Field", Value: schema.Int(7)}})
//
//	dec := codec.NewDecoder(planner, codec.Options{})
//	v, err := dec.Decode(st, msg)
//
// # Thread Safety
//
// A planned layout is immutable and may be shared by any number of
// goroutines. Planner serializes planning internally. Encoder and Decoder
// keep no shared state; concurrent writers to one Memory must coordinate
// externally.
package capnplayout
