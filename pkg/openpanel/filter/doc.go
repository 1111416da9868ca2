/*
Package filter compiles event filter expressions.

An expression is parsed once by Compile and evaluated against each event's
fields. It is used for the exclude configuration key: events matching the
expression are dropped before delivery.

# Expression Syntax

	<expr>  := <expr> 'or' <expr>
	         | <expr> 'and' <expr>
	         | 'not' <expr> | '!' <expr>
	         | <operand> <op> <operand>
	         | <operand>
	<op>    := '==' | '!=' | '<' | '>' | '<=' | '>=' | 'contains'

'or' binds loosest, then 'and', then negation. Operands are quoted strings
('a' or "a"), numbers, true, false, null, or field names. Operators inside
quotes are not split on.

# Fields

	type            track, identify, alias, increment, or decrement
	name            the track name
	profileId       the payload's profile id
	alias           the alias of an alias event
	property        the property of an increment or decrement event
	email           identify traits; also firstName, lastName, avatar
	properties.KEY  a property of a track or identify event

A field the event does not have resolves to null.

# Examples

	name == 'heartbeat'
	type == 'track' and properties.internal == true
	not profileId and name contains 'debug'
	properties.amount > 1000

# Truthiness

A lone operand is true unless it is null, false, an empty string, or zero.
*/
package filter
