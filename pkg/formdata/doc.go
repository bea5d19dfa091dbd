// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package formdata implements the ordered, nested key/value tree that carries
user-entered event data into the XML serializer.

eSocial schemas declare their children as xs:sequence, so the order in which
keys appear in the form (and in the catalog's default state) is significant.
Go maps do not keep insertion order, which is why the tree is built from
[Object] values instead of map[string]any.

# Paths

Fields address the tree with dot paths. Array positions use brackets:

	infoEmpregador.inclusao.infoCadastro.classTrib
	dependente[0].nmDep

[Expand] turns a flat object whose keys are paths into the nested form, and
[Object.Lookup] / [Object.SetPath] read and write single paths.

# Values

Leaves are string, json.Number, bool or nil. Branches are *Object or [List].
JSON and YAML decoding both preserve key order and keep numbers as
json.Number so "0012" style codes and integers survive unchanged.
*/
package formdata
