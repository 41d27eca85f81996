// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package adaptor

// calculationPathArgs is the hand-maintained per-tool table of path-argument
// names, one entry per materials-science calculation tool this runtime
// targets. It is never silently dropped even when the schema heuristic also
// matches the same argument — the union of the two is mandatory.
var calculationPathArgs = map[string][]string{
	"get_structure_info":                  {"structure_path"},
	"get_molecule_info":                   {"molecule_path"},
	"build_bulk_structure_by_template":     {},
	"build_bulk_structure_by_wyckoff":      {},
	"make_supercell_structure":             {"structure_path"},
	"apply_structure_transformation":       {"structure_path"},
	"build_molecule_structures_from_smiles": {},
	"add_cell_for_molecules":              {"molecule_path"},
	"build_surface_slab":                  {"material_path"},
	"build_surface_adsorbate":             {"surface_path", "adsorbate_path"},
	"build_surface_interface":             {"material1_path", "material2_path"},
	"make_defect_structure":               {"structure_path"},
	"make_doped_structure":                {"structure_path"},
	"make_amorphous_structure":            {"molecule_paths"},
	"add_hydrogens":                       {"structure_path"},
	"generate_ordered_replicas":           {"structure_path"},
	"remove_solvents":                     {"structure_path"},
	"optimize_structure":                  {"input_structure"},
	"calculate_phonon":                    {"input_structure"},
	"run_molecular_dynamics":              {"initial_structure"},
	"calculate_elastic_constants":         {"input_structure"},
	"run_neb":                             {"initial_structure", "final_structure"},
	"extract_material_data_from_pdf":      {"pdf_path"},
	"extract_info_from_webpage":           {},
}

// schemaHintKeywords drive the schema-driven heuristic half of the path-
// argument union: a property whose name or description contains one of
// these (case-insensitive) is treated as a candidate path argument.
var schemaHintKeywords = []string{
	"path", "file", "url", "structure", "pdf", "cif", "input_structure",
	"molecule", "surface", "slab",
}

// nonPathSchemaKeys denies specific property names from ever being treated
// as path arguments by the heuristic, even if they match a keyword above.
var nonPathSchemaKeys = map[string]bool{
	"crystal_structure": true,
	"output_file":       true,
}

// PathArgNames returns the hand-maintained entry for remoteName, if any.
func PathArgNames(remoteName string) ([]string, bool) {
	names, ok := calculationPathArgs[remoteName]
	return names, ok
}
