/*
Package warehouse provides an Entity-Component-System (ECS) framework for games and simulations.

Warehouse offers a performant approach to managing game entities through component-based design.
It's built on an archetype-based storage system that keeps entities with the same component types
together for optimal cache utilization.

Core Concepts:

  - Entity: A unique identifier that represents a game object.
  - Component: A data container that defines entity attributes.
  - Archetype: A collection of entities sharing the same component types.
  - Query: A way to find entities with specific component combinations.
  - World: The composition root wiring storage, the event bus, the query
    cache, the scheduler, validation, singletons and command buffers into
    one handle.

Low-level Usage:

Storage and the query cache underneath World remain usable on their own
for callers that want the archetype engine without the rest:

	// Create storage with schema
	schema := table.Factory.NewSchema()
	storage := warehouse.Factory.NewStorage(schema)

	// Define components
	position := warehouse.FactoryNewComponent[Position]()
	velocity := warehouse.FactoryNewComponent[Velocity]()

	// Create entities
	entities, _ := storage.NewEntities(100, position, velocity)

	// Query entities and process them
	cache := warehouse.Factory.NewQueryCache(storage)
	query := warehouse.NewQueryBuilder(cache, storage).With(position.Component).With(velocity.Component)

	query.ForEach(func(e warehouse.Entity) {
		pos := position.GetFromEntity(e)
		vel := velocity.GetFromEntity(e)
		pos.X += vel.X
		pos.Y += vel.Y
	})

World Usage:

Most callers instead want World, which wraps the above in the builder,
query-cache, scheduler and event-bus layers:

	w := warehouse.Factory.NewWorld(nil)

	position := warehouse.FactoryNewComponent[Position]()
	velocity := warehouse.FactoryNewComponent[Velocity]()

	warehouse.Subscribe(w.Events(), func(e warehouse.ComponentAddedEvent[Position]) {
		log.Printf("entity %v got a position", e.Entity)
	})

	e, _ := w.Spawn("player").
		With(position.Component, Position{}).
		With(velocity.Component, Velocity{X: 1}).
		Build()

	w.AddSystem(&MovementSystem{Position: position, Velocity: velocity}, warehouse.SystemOptions{
		Phase: warehouse.Update,
		Deps: warehouse.ComponentDependencies{
			Reads:  []warehouse.Component{velocity.Component},
			Writes: []warehouse.Component{position.Component},
		},
	})

	if err := w.Update(1.0 / 60.0); err != nil {
		log.Fatal(err)
	}

Systems that need to create or destroy entities from inside Update should
rent a CommandBuffer from w.Buffers(), queue their operations, and let the
scheduler's caller flush it with w.FlushAll() once every system for the
frame has run; this keeps structural changes out of the middle of a query
iteration.

Warehouse is the underlying ECS for the Bappa Framework but also works as a standalone library.
*/
package warehouse
